package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep fingerprints of different record kinds apart.
const (
	DomainAdminState = "carta/admin-state/v1"
	DomainCart       = "carta/cart/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns the digest of p's canonical form. Two payloads have the
// same fingerprint exactly when their stored forms are equivalent.
func Fingerprint(p Payload) (string, error) {
	data, err := Encode(p)
	if err != nil {
		return "", err
	}
	return FingerprintBytes(DomainAdminState, data)
}

// ContentFingerprint is Fingerprint with LastSyncedAt left out. Two replicas
// holding the same data under different sync stamps share it.
func ContentFingerprint(p Payload) (string, error) {
	p.LastSyncedAt = nil
	return Fingerprint(p)
}

// FingerprintBytes returns the digest of an already-encoded JSON document.
func FingerprintBytes(domain string, data []byte) (string, error) {
	canonical, err := Canonical(data)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}
