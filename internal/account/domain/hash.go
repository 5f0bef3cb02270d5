package domain

import (
	"crypto/sha256"
	"fmt"
)

// HashAPIKey is the lookup form of a raw key: lowercase sha256 hex. Raw keys
// are never stored.
func HashAPIKey(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}
