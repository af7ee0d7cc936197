// Package token manages JWT envelope minting and verification with strict
// validation semantics suitable for low-latency authentication paths.
package token
