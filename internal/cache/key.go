package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

var keyReplacer = strings.NewReplacer(
	" ", "_",
	"\n", "",
	"\r", "",
	"\t", "",
)

// Key joins sanitized parts with ":".
func Key(parts ...string) string {
	clean := make([]string, len(parts))
	for i, p := range parts {
		clean[i] = keyReplacer.Replace(p)
	}
	return strings.Join(clean, ":")
}

// HashKey hashes a key to a fixed length.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
