package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed keys.
// Version suffix enables future algorithm migration.
const (
	DomainIdentity = "jagtrack/identity/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// IdentityKey computes a stable key for an activity identity.
// Equal identities (nil and empty params alike) yield equal keys, so the
// key can group the same activity across observers.
func IdentityKey(id Identity) (string, error) {
	obj := map[string]any{
		"urn":     id.URN,
		"inputs":  id.Inputs.Clone(),
		"outputs": id.Outputs.Clone(),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("IdentityKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainIdentity, canonical), nil
}

// MustIdentityKey is like IdentityKey but panics on error.
// Identities hold only strings, so an error indicates a programming bug.
func MustIdentityKey(id Identity) string {
	key, err := IdentityKey(id)
	if err != nil {
		panic(err)
	}
	return key
}
