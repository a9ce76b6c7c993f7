package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// fingerprintDomain separates state fingerprints from any other
// SHA-256 use. Bump the version when the canonical form changes.
const fingerprintDomain = "reflow/state/v1"

// Fingerprint returns the hex SHA-256 of the value's canonical form,
// prefixed with a domain separator. Equal values always fingerprint
// identically; the converse holds up to JSON number semantics, where
// Int(1) and Float(1) share a canonical form.
func Fingerprint(v Value) (string, error) {
	canon, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("state: fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0})
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}
