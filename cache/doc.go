// Package cache keeps a Redis acceleration layer over the refresh-token
// ledger. Entries are advisory; the ledger stays authoritative and the engine
// repairs the cache whenever the two disagree.
package cache
