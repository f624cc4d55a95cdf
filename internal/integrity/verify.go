package integrity

import (
	"context"
	"errors"
	"os"
)

// Verification is the outcome of recomputing a packaged artifact's hash.
//
// Exactly one of the two shapes is populated: either Recomputed and Match
// (the copy was hashed), or Error (it could not be). A mismatch is recorded
// as Match=false and is never corrected.
type Verification struct {
	// Recomputed is the digest of the packaged copy, nil if not computed
	Recomputed *string `json:"recomputed_hash"`

	// Expected is the digest of the original artifact
	Expected string `json:"expected_hash"`

	// Match is nil when no recomputation happened
	Match *bool `json:"match"`

	// Error describes why recomputation did not happen
	Error *string `json:"error"`
}

// Intact reports whether the copy was hashed and matched.
func (v Verification) Intact() bool {
	return v.Match != nil && *v.Match
}

// Verify recomputes the digest of path and compares it to expected.
// Failures are returned inside the Verification rather than as an error so
// callers can persist an integrity-unknown status.
func Verify(ctx context.Context, path string, expected ArtifactHash) Verification {
	v := Verification{Expected: expected.Value}

	if path == "" {
		msg := ErrCopyMissing.Error()
		v.Error = &msg
		return v
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		msg := ErrCopyMissing.Error() + ": " + path
		v.Error = &msg
		return v
	}

	got, err := Compute(ctx, path)
	if err != nil {
		msg := err.Error()
		v.Error = &msg
		return v
	}

	match := got.Equal(expected)
	v.Recomputed = &got.Value
	v.Match = &match
	return v
}

// Missing returns the Verification recorded when no copy exists.
func Missing(expected ArtifactHash, reason string) Verification {
	msg := ErrCopyMissing.Error()
	if reason != "" {
		msg += ": " + reason
	}
	return Verification{Expected: expected.Value, Error: &msg}
}
