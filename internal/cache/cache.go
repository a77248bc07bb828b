package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Store is a time-boxed key/value store for rendered endpoint responses.
// Values are the exact bytes previously emitted to a client and are always
// replaced wholesale.
type Store interface {
	// Get returns the stored bytes when present and younger than ttl.
	// A ttl <= 0 accepts an entry of any age. Backends that expire entries
	// at write time ignore ttl.
	Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool, error)
	// Set writes value unconditionally under key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Ping reports whether the backend is reachable.
	Ping() error
}

// Key joins the discriminating parts of a request into the human-readable
// composite key, e.g. Key("onecall", "14.5,120.9", "metric").
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Hash returns the opaque stable name a composite key is stored under.
func Hash(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
