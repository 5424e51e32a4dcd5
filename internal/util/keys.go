package util

import (
	"crypto/sha256"
	"fmt"
)

// maxInlineParams is the longest canonical parameter string kept verbatim in a
// storage key; longer ones are replaced by a short hash.
const maxInlineParams = 96

// StorageKey returns the provider key for a query: prefix:kind:params.
// Parameter strings longer than maxInlineParams collapse to the first 128 bits
// of their SHA-256, hex encoded, so keys stay bounded for memcache-like stores.
func StorageKey(prefix, kind, params string) string {
	if len(params) <= maxInlineParams {
		return prefix + ":" + kind + ":" + params
	}
	sum := sha256.Sum256([]byte(params))
	return fmt.Sprintf("%s:%s:#%x", prefix, kind, sum[:16])
}
