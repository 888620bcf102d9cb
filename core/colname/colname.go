// Package colname converts flat document keys into stable relational column
// identifiers.
//
// A flat key is the "/"-joined path of nested document keys leading to one
// scalar value (e.g. "details/address/city"). Relational engines put length
// and charset limits on identifiers that arbitrary document keys do not
// respect, so the column name used on disk is a fixed-form digest of the flat
// key: "col_" followed by 32 hex characters of a BLAKE3 digest. The encoding
// is a pure function of the flat key with no salt, so the same key always
// maps to the same column across processes and restarts.
//
// Reserved suffixes on the last path segment carry schema hints: a flat key
// ending in "_pri" marks its column as part of the table's primary key, and
// "_ind" marks it as needing a secondary index.
package colname

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	// Prefix tags every encoded column identifier.
	Prefix = "col_"

	// Separator joins nested key path segments into a flat key.
	Separator = "/"

	// digestLen is the number of digest bytes kept in the identifier.
	// 16 bytes (128 bits) keeps identifiers short while making accidental
	// collisions between distinct flat keys effectively impossible.
	digestLen = 16

	// PrimaryKeySuffix marks a flat key whose column joins the primary key.
	PrimaryKeySuffix = "_pri"

	// IndexSuffix marks a flat key whose column gets a secondary index.
	IndexSuffix = "_ind"
)

// Encode computes the column identifier for a flat key.
// It is deterministic and stable across runs.
func Encode(flatKey string) string {
	sum := blake3.Sum256([]byte(flatKey))
	return Prefix + hex.EncodeToString(sum[:digestLen])
}

// IsEncoded reports whether s has the form of an encoded column identifier.
func IsEncoded(s string) bool {
	if !strings.HasPrefix(s, Prefix) {
		return false
	}
	digest := s[len(Prefix):]
	if len(digest) != digestLen*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

// Join builds a flat key from nested path segments.
func Join(segments ...string) string {
	return strings.Join(segments, Separator)
}

// Split breaks a flat key back into its path segments.
func Split(flatKey string) []string {
	return strings.Split(flatKey, Separator)
}

// IsPrimaryKey reports whether a flat key's terminal segment carries the
// primary-key suffix.
func IsPrimaryKey(flatKey string) bool {
	return strings.HasSuffix(flatKey, PrimaryKeySuffix)
}

// IsIndexed reports whether a flat key's terminal segment carries the
// secondary-index suffix.
func IsIndexed(flatKey string) bool {
	return strings.HasSuffix(flatKey, IndexSuffix)
}
