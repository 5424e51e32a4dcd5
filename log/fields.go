// Package log holds helpers shared by the querycache Logger adapters.
package log

import (
	"sort"

	"github.com/unkn0wn-root/querycache"
)

// SortedKeys returns the field names of f in lexical order so adapters emit
// fields deterministically.
func SortedKeys(f querycache.Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
