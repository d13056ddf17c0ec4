package signer

import "crypto/sha256"

// digestSHA256 hashes msg with SHA-256, the digest spec §4.4 names for the
// node's own signature over an aggregated value.
func digestSHA256(msg []byte) []byte {
	sum := sha256.Sum256(msg)
	return sum[:]
}
