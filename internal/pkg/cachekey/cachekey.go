// Package cachekey derives the cache engine's frame registry key.
//
// The key must be computed with the exact same hash and normalization the
// engine itself uses, otherwise frame lookups silently miss.
package cachekey

import (
	"encoding/hex"
	"strings"

	"github.com/minio/sha256-simd"
)

// NormalizePath strips leading separators so "/MyApp" and "MyApp" derive
// the same key.
func NormalizePath(applicationPath string) string {
	return strings.TrimLeft(applicationPath, "/")
}

// ForApplication returns the registry key for one hostname + application
// path pair, sha256 over "hostname/path".
func ForApplication(hostname, applicationPath string) string {
	input := hostname + "/" + NormalizePath(applicationPath)
	digest := sha256.Sum256([]byte(input))
	return hex.EncodeToString(digest[:])
}
