// Package hashing computes the content fingerprints the freshness engine
// compares across build cycles. All digests are xxhash64 rendered as
// "xxh64:<16 hex chars>" so a manifest reader can tell the algorithm at a glance.
package hashing

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

const prefix = "xxh64:"

// Bytes computes the digest of a byte slice.
func Bytes(data []byte) string {
	return fmt.Sprintf("%s%016x", prefix, xxhash.Sum64(data))
}

// File computes the digest of a file's content by streaming it.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%s%016x", prefix, hasher.Sum64()), nil
}

// Fields computes a single digest over an ordered list of string fields.
// A NUL separator after each field keeps ("ab","c") distinct from ("a","bc").
// Used for the page content hash: markdown body plus the frontmatter fields
// that affect rendered output, in a fixed field order.
func Fields(fields ...string) string {
	hasher := xxhash.New()
	for _, f := range fields {
		_, _ = hasher.WriteString(f)
		_, _ = hasher.Write([]byte{0})
	}
	return fmt.Sprintf("%s%016x", prefix, hasher.Sum64())
}
