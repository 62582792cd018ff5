// Package classify tags storage paths with data-lake semantics.
//
// Containers get a lakehouse tier (ingress, bronze, silver, gold, other) from
// their name. Files are recognized as datasets when they are parquet snapshots
// or delta table log entries. All functions are pure and total.
package classify

import (
	"path"
	"sort"
	"strings"
)

// ContainerType is the lakehouse tier a container belongs to.
type ContainerType string

const (
	ContainerIngress ContainerType = "ingress"
	ContainerBronze  ContainerType = "bronze"
	ContainerSilver  ContainerType = "silver"
	ContainerGold    ContainerType = "gold"
	ContainerOther   ContainerType = "other"
)

// tierOrder is the match priority: a name containing both "bronze" and
// "gold" is bronze.
var tierOrder = []ContainerType{ContainerIngress, ContainerBronze, ContainerSilver, ContainerGold}

// ContainerTypeOf returns the first tier whose name occurs anywhere in the
// lower-cased container name, or ContainerOther.
func ContainerTypeOf(name string) ContainerType {
	lower := strings.ToLower(name)
	for _, tier := range tierOrder {
		if strings.Contains(lower, string(tier)) {
			return tier
		}
	}
	return ContainerOther
}

// Format is a recognized dataset storage format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatDelta   Format = "delta"
)

const parquetExt = ".parquet"

// DatasetFormatOf classifies a listing entry. Directories are never datasets.
//
// A name ending in ".parquet" (case-sensitive) is parquet. Otherwise it is
// delta when the lower-cased name contains "_delta_log", or when it ends in
// ".json" and contains "_commit" or "_metadata".
func DatasetFormatOf(name string, isDirectory bool) (Format, bool) {
	if isDirectory {
		return "", false
	}
	if strings.HasSuffix(name, parquetExt) {
		return FormatParquet, true
	}

	lower := strings.ToLower(name)
	if strings.Contains(lower, "_delta_log") {
		return FormatDelta, true
	}
	if strings.HasSuffix(lower, ".json") && (strings.Contains(lower, "_commit") || strings.Contains(lower, "_metadata")) {
		return FormatDelta, true
	}
	return "", false
}

// IsDatasetPath reports whether the entry is a dataset file of any format.
func IsDatasetPath(name string, isDirectory bool) bool {
	_, ok := DatasetFormatOf(name, isDirectory)
	return ok
}

// DatasetBaseName returns the last path segment with a trailing ".parquet"
// removed. Other extensions are kept.
func DatasetBaseName(p string) string {
	base := path.Base(strings.TrimSuffix(p, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, parquetExt)
}

// FormatSet is an insertion-ordered set of formats.
// The zero value is ready to use. Not safe for concurrent mutation.
type FormatSet struct {
	items []Format
}

// NewFormatSet returns a set holding the given formats.
func NewFormatSet(formats ...Format) FormatSet {
	var s FormatSet
	for _, f := range formats {
		s.Add(f)
	}
	return s
}

// Add inserts f if absent.
func (s *FormatSet) Add(f Format) {
	if f == "" || s.Has(f) {
		return
	}
	s.items = append(s.items, f)
}

// Merge adds every format of other.
func (s *FormatSet) Merge(other FormatSet) {
	for _, f := range other.items {
		s.Add(f)
	}
}

// Has reports whether f has been added.
func (s FormatSet) Has(f Format) bool {
	for _, x := range s.items {
		if x == f {
			return true
		}
	}
	return false
}

// Len returns the number of distinct formats.
func (s FormatSet) Len() int { return len(s.items) }

// Sorted returns the formats in lexical order. Never nil.
func (s FormatSet) Sorted() []Format {
	out := make([]Format, len(s.items))
	copy(out, s.items)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns Sorted as plain strings.
func (s FormatSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, f := range sorted {
		out[i] = string(f)
	}
	return out
}
