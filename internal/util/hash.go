// Package util provides shared utility functions.
package util

import (
	"fmt"
	"hash/fnv"
)

// ShortHash computes a 4-byte FNV-1a hash over parts and renders it as 8 hex
// characters. The result is used solely for identification and is not
// collision resistant.
func ShortHash(parts ...[]byte) string {
	h := fnv.New32a()
	for _, p := range parts {
		h.Write(p)
	}
	return fmt.Sprintf("%08x", h.Sum32())
}
