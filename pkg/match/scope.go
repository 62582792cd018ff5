package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Scope decides which folders a traversal may enter.
//
// Folder keys are container-relative and slash-terminated ("sales/2024/").
// A folder is allowed when it matches no exclude pattern and either matches
// an include pattern or is an ancestor of an include pattern's literal
// prefix, so "sales/2024/**" still lets traversal pass through "sales/".
//
// A Scope is safe for concurrent use after creation. The nil Scope allows
// everything.
type Scope struct {
	includes      []pattern
	excludes      []pattern
	includeHidden bool
}

// pattern holds a validated pattern with its literal directory prefix.
type pattern struct {
	raw    string
	prefix string
}

// Config configures a Scope.
type Config struct {
	// Includes are glob patterns folders must match (at least one).
	// Empty means "**".
	Includes []string

	// Excludes are glob patterns folders must not match (any).
	Excludes []string

	// IncludeHidden admits folders with a segment starting with '.'.
	// Default: false.
	IncludeHidden bool
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// NewScope validates the patterns and returns a Scope. With no includes and
// no excludes it returns nil, which allows every folder.
func NewScope(cfg Config) (*Scope, error) {
	if len(cfg.Includes) == 0 && len(cfg.Excludes) == 0 {
		return nil, nil
	}

	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	if len(includes) == 0 {
		includes = []pattern{{raw: "**"}}
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}

	return &Scope{includes: includes, excludes: excludes, includeHidden: cfg.IncludeHidden}, nil
}

func compile(raws []string) ([]pattern, error) {
	out := make([]pattern, 0, len(raws))
	for _, raw := range raws {
		p := strings.TrimPrefix(strings.TrimSpace(raw), Separator)
		if p == "" || !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		out = append(out, pattern{raw: p, prefix: literalPrefix(p)})
	}
	return out, nil
}

// Allow reports whether traversal may enter folder.
func (s *Scope) Allow(folder string) bool {
	if s == nil {
		return true
	}

	key := strings.Trim(folder, Separator)
	if key == "" {
		return true
	}
	if !s.includeHidden && IsHidden(key) {
		return false
	}

	for _, exc := range s.excludes {
		if matchFolder(exc.raw, key) {
			return false
		}
	}

	dir := key + Separator
	for _, inc := range s.includes {
		if matchFolder(inc.raw, key) || strings.HasPrefix(inc.prefix, dir) {
			return true
		}
	}
	return false
}

// IncludePatterns returns the include patterns in their compiled form.
func (s *Scope) IncludePatterns() []string {
	if s == nil {
		return nil
	}
	return raws(s.includes)
}

// ExcludePatterns returns the exclude patterns in their compiled form.
func (s *Scope) ExcludePatterns() []string {
	if s == nil {
		return nil
	}
	return raws(s.excludes)
}

func raws(ps []pattern) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.raw
	}
	return out
}

// matchFolder tries the folder key with and without its trailing separator
// so both "sales/*" and "sales/*/" select "sales/2024/".
func matchFolder(pat, key string) bool {
	if ok, _ := doublestar.Match(pat, key); ok {
		return true
	}
	ok, _ := doublestar.Match(pat, key+Separator)
	return ok
}

// literalPrefix returns the leading whole segments of pat that contain no
// glob metacharacters, slash-terminated.
//
//	"sales/2024/**"    -> "sales/2024/"
//	"sales/20*/x"      -> "sales/"
//	"**/_delta_log"    -> ""
func literalPrefix(pat string) string {
	var b strings.Builder
	segs := strings.Split(pat, Separator)
	for i, seg := range segs {
		if i == len(segs)-1 || HasMeta(seg) {
			break
		}
		b.WriteString(seg)
		b.WriteString(Separator)
	}
	return b.String()
}

// HasMeta reports whether s contains glob metacharacters.
func HasMeta(s string) bool {
	return strings.ContainsAny(s, `*?[{\`)
}
