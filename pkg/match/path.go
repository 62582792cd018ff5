// Package match provides key arithmetic for slash-separated object keys and
// doublestar scope filters for tree traversal.
package match

import "strings"

// Separator is the key separator used by every supported provider.
const Separator = "/"

// HasTrailingSlash returns true if the key ends with a slash.
func HasTrailingSlash(key string) bool {
	return strings.HasSuffix(key, Separator)
}

// EnsureTrailingSlash adds a trailing slash if not present.
// Returns empty string unchanged.
func EnsureTrailingSlash(key string) string {
	if key == "" || HasTrailingSlash(key) {
		return key
	}
	return key + Separator
}

// NormalizePrefix turns a user-supplied folder prefix into listing form:
// no leading separator, no empty segments, one trailing separator.
// The container root is "".
//
//	"/data//2024"  -> "data/2024/"
//	"data/"        -> "data/"
//	"/"            -> ""
func NormalizePrefix(prefix string) string {
	return EnsureTrailingSlash(JoinKey(prefix))
}

// StripPrefix returns name relative to prefix. Whether prefix carries a
// trailing separator does not matter, and the result never starts with a
// separator. Names outside prefix are returned with leading separators
// trimmed, so relative names pass through unchanged.
//
//	StripPrefix("data/out.parquet", "data/") -> "out.parquet"
//	StripPrefix("data/out.parquet", "data")  -> "out.parquet"
//	StripPrefix("out.parquet", "data/")      -> "out.parquet"
//	StripPrefix("data/", "data/")            -> ""
func StripPrefix(name, prefix string) string {
	p := strings.Trim(prefix, Separator)
	rel := strings.TrimLeft(name, Separator)
	if p != "" && strings.HasPrefix(rel, p) {
		rest := rel[len(p):]
		if rest == "" || strings.HasPrefix(rest, Separator) {
			rel = rest
		}
	}
	return strings.TrimLeft(rel, Separator)
}

// FirstSegment splits a relative key at its first separator.
// nested is true when anything follows the separator or when the key itself
// ends in a separator.
//
//	"a/b/c"  -> ("a", true)
//	"a/"     -> ("a", true)
//	"a"      -> ("a", false)
func FirstSegment(rel string) (segment string, nested bool) {
	idx := strings.Index(rel, Separator)
	if idx < 0 {
		return rel, false
	}
	return rel[:idx], true
}

// JoinKey joins segments with single separators, dropping empty segments and
// any separators at segment edges.
//
//	JoinKey("lake", "/data/", "out.parquet") -> "lake/data/out.parquet"
//	JoinKey("lake", "", "x")                 -> "lake/x"
func JoinKey(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, part := range parts {
		for _, seg := range strings.Split(part, Separator) {
			if seg != "" {
				segs = append(segs, seg)
			}
		}
	}
	return strings.Join(segs, Separator)
}

// IsHidden returns true if any path segment starts with a dot.
func IsHidden(key string) bool {
	for _, seg := range strings.Split(key, Separator) {
		if seg != "" && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
