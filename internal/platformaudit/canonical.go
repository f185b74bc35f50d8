package platformaudit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// canonicalPayload fixes the serialization the chain hash covers. Struct
// fields marshal in declaration order, which gives a stable key order; the
// timestamp is UTC RFC3339Nano truncated to microseconds so the value
// round-trips through a timestamptz column unchanged; details are compacted
// so formatting differences never affect the hash.
type canonicalPayload struct {
	Action         string          `json:"action"`
	TargetClinicID string          `json:"target_clinic_id"`
	Details        json.RawMessage `json:"details"`
	CreatedAt      string          `json:"created_at"`
}

// CanonicalTime normalizes a timestamp for hashing. Sub-microsecond
// precision does not survive the database round trip, so it must not be
// hashed either.
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ComputeHash derives the chain hash for an entry given its predecessor's
// hash: hex(SHA-256(previousHash || canonical_json(entry))). The writer and
// the verifier must agree on this function exactly; it is the single place
// canonicalization is defined.
func ComputeHash(previousHash string, e Entry) (string, error) {
	details := e.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, details); err != nil {
		return "", fmt.Errorf("compact details: %w", err)
	}

	target := ""
	if e.TargetClinicID != nil {
		target = e.TargetClinicID.String()
	}

	payload := canonicalPayload{
		Action:         e.Action,
		TargetClinicID: target,
		Details:        json.RawMessage(compact.Bytes()),
		CreatedAt:      CanonicalTime(e.CreatedAt).Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal canonical payload: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
