// Package cache provides an optional stage-result cache shared across runs.
// It only ever saves upstream calls for identical inputs; a miss or a cache
// failure is never an error.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores stage results keyed by request content hash.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration)
}

// Key derives a cache key from the stage name and the normalized request
// input. Normalization collapses whitespace and case so trivially different
// requests share an entry.
func Key(stage, text, language string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))

	h := sha256.New()
	h.Write([]byte(stage))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(language))

	return hex.EncodeToString(h.Sum(nil))
}
