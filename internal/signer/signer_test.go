package signer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyhatharola/Oracular/internal/domain"
)

func generateECPKCS8(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, der
}

func testSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	return s
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s := testSigner(t)
	value := domain.AggregatedValue{Value: 1234.5678, NumSources: 3}
	ts := time.Now()

	signed, err := s.Sign(value, ts)
	require.NoError(t, err)
	assert.Equal(t, value, signed.AggregatedValue)

	pubPEM, err := s.PublicKeyPEM()
	require.NoError(t, err)

	ok, err := Verify(pubPEM, value, ts, signed.Signature)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyFailsOnTamperedValue(t *testing.T) {
	s := testSigner(t)
	value := domain.AggregatedValue{Value: 100.0}
	ts := time.Now()

	signed, err := s.Sign(value, ts)
	require.NoError(t, err)

	pubPEM, err := s.PublicKeyPEM()
	require.NoError(t, err)

	tampered := domain.AggregatedValue{Value: 999.0}
	ok, err := Verify(pubPEM, tampered, ts, signed.Signature)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyFailsWithWrongKey(t *testing.T) {
	s := testSigner(t)
	value := domain.AggregatedValue{Value: 55.5}
	ts := time.Now()

	signed, err := s.Sign(value, ts)
	require.NoError(t, err)

	other := testSigner(t)
	otherPub, err := other.PublicKeyPEM()
	require.NoError(t, err)

	ok, err := Verify(otherPub, value, ts, signed.Signature)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewFromPEMLoadsPKCS8Key(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	s, err := NewFromPEM(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, key.N, s.privateKey.N)
}

func TestNewFromPEMRejectsInvalidBlock(t *testing.T) {
	_, err := NewFromPEM([]byte("not a pem block"))
	assert.Error(t, err)
}

func TestNewFromPEMRejectsNonRSAKey(t *testing.T) {
	// An EC key DER-encoded as PKCS8 must be rejected: the signer only
	// supports RSA.
	_, ecDER := generateECPKCS8(t)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: ecDER})

	_, err := NewFromPEM(pemBytes)
	assert.Error(t, err)
}

func TestCanonicalIsDeterministicForSameInput(t *testing.T) {
	value := domain.AggregatedValue{Value: 42.0}
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, Canonical(value, ts), Canonical(value, ts))
}

func TestCanonicalDiffersOnDifferentTimestamp(t *testing.T) {
	value := domain.AggregatedValue{Value: 42.0}
	ts1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(time.Second)

	assert.NotEqual(t, Canonical(value, ts1), Canonical(value, ts2))
}
