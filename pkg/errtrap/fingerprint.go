// fingerprint.go generates stable hashes for grouping similar records.

package errtrap

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// fingerprintFrames is the number of top frames that contribute to a fingerprint.
const fingerprintFrames = 3

// Fingerprint generates a hash for grouping similar records.
// The fingerprint is based on:
//   - category and code
//   - source file
//   - first 3 stack frames (function names only)
//
// It ignores variable data like timestamps, correlation ids, messages and
// line numbers, so the same fault on a shifted line still groups together.
func Fingerprint(rec ErrorRecord) string {
	parts := []string{rec.Category, strconv.Itoa(rec.Code), rec.File}
	for i, f := range rec.StackTrace {
		if i >= fingerprintFrames {
			break
		}
		parts = append(parts, f.Function)
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))

	// Return hex-encoded first 16 bytes (32 hex chars)
	return hex.EncodeToString(hash[:16])
}
