package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ChecksumBytes returns the lowercase hex sha256 digest of data.
func ChecksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether data matches the declared digest.
// Comparison is case-insensitive; an empty declared digest never matches.
func VerifyChecksum(data []byte, declared string) bool {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "" {
		return false
	}
	return ChecksumBytes(data) == declared
}
