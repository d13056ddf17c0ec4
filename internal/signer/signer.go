// Package signer produces a detached signature over an AggregatedValue
// using the node's asymmetric private key (spec §4.4).
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
)

// Signer holds a node's keypair, generated once at node start (spec §4.4
// "Keys are generated at node start").
type Signer struct {
	privateKey *rsa.PrivateKey
}

// New generates a fresh RSA-3072 keypair for this node.
func New() (*Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 3072)
	if err != nil {
		return nil, errs.Wrap(errs.KindAuth, "generate signing key", err)
	}
	return &Signer{privateKey: key}, nil
}

// NewFromPEM loads a node's private key from a PEM-encoded PKCS#8 block,
// for deployments that provision a stable key rather than generating one
// per process restart.
func NewFromPEM(pemBytes []byte) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errs.Validation("invalid PEM block for signing key")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errs.Wrap(errs.KindAuth, "parse signing key", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errs.Validation("signing key is not RSA")
	}
	return &Signer{privateKey: rsaKey}, nil
}

// PublicKeyPEM returns the PEM-encoded public key, publishable via the
// registry (spec §4.4 "public keys may be published via the registry").
func (s *Signer) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&s.privateKey.PublicKey)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Sign serializes value and ts as canonical UTF-8 text and signs it with
// PSS padding over a SHA-256 digest (spec §4.4).
func (s *Signer) Sign(value domain.AggregatedValue, ts time.Time) (domain.SignedValue, error) {
	msg := Canonical(value, ts)
	digest := digestSHA256(msg)

	sig, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, digest, nil)
	if err != nil {
		return domain.SignedValue{}, errs.Wrap(errs.KindAuth, "sign aggregated value", err)
	}

	return domain.SignedValue{
		AggregatedValue: value,
		Signature:       sig,
		ProducedAt:      ts,
	}, nil
}

// Verify checks sig over (value, ts) against a PEM-encoded RSA public key,
// used by the round-trip test property (spec §8).
func Verify(publicKeyPEM []byte, value domain.AggregatedValue, ts time.Time, sig []byte) (bool, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return false, errs.Validation("invalid PEM block for public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false, errs.Wrap(errs.KindAuth, "parse public key", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return false, errs.Validation("public key is not RSA")
	}

	msg := Canonical(value, ts)
	digest := digestSHA256(msg)
	err = rsa.VerifyPSS(rsaPub, crypto.SHA256, digest, sig, nil)
	return err == nil, nil
}

// Canonical produces the exact UTF-8 text signed/verified for a given
// AggregatedValue and timestamp.
func Canonical(value domain.AggregatedValue, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%v:%s", value.Value, ts.UTC().Format(time.RFC3339Nano)))
}
