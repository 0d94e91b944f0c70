package work

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns a non-reversible sha256 hex digest of a payload.
// Audit records carry this instead of the raw payload so logs never leak
// financial detail.
func Fingerprint(payload json.RawMessage) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
