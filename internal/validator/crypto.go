package validator

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
)

// verifyRSAPSS verifies sig over msg (already hashed by the caller) using
// a PEM-encoded RSA public key and PSS padding over a SHA3-256 digest, the
// source-signature scheme for the pipeline's own cryptographic stage
// (spec §4.2 stage 5).
func verifyRSAPSS(pemKey, msg, sig []byte) bool {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return false
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return false
	}
	err = rsa.VerifyPSS(rsaPub, crypto.SHA3_256, msg, sig, nil)
	return err == nil
}
