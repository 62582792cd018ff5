package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/3leaps/lakemap/pkg/match"
	"github.com/3leaps/lakemap/pkg/provider"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrPatternURI indicates a glob was given where a location is expected.
	ErrPatternURI = errors.New("glob patterns are not supported in URIs")

	// ErrOutsideBaseDir indicates a file URI outside --base-dir.
	ErrOutsideBaseDir = errors.New("path is outside the base directory")
)

// Location is a parsed storage URI: an account, a container, or a folder
// inside a container.
//
// Example URIs:
//   - s3://                        (every bucket)
//   - s3://bucket/
//   - s3://bucket/sales/2024/
//   - file:///srv/lake             (every directory under /srv/lake)
//   - file:///srv/lake/gold/sales/ (with --base-dir /srv/lake)
type Location struct {
	Provider provider.ProviderType

	// BaseDir is the account root for the file provider.
	BaseDir string

	// Container is empty for account-level locations.
	Container string

	// Prefix is the normalized folder prefix; empty for the container root.
	Prefix string
}

// IsAccount reports whether the location names no container.
func (l *Location) IsAccount() bool {
	return l.Container == ""
}

// String returns the location in canonical form.
func (l *Location) String() string {
	if l.Provider == provider.ProviderFile {
		p := l.BaseDir
		if l.Container != "" {
			p = filepath.ToSlash(filepath.Join(l.BaseDir, l.Container)) + match.Separator + l.Prefix
		}
		return "file://" + p
	}
	if l.Container == "" {
		return "s3://"
	}
	return fmt.Sprintf("s3://%s/%s", l.Container, l.Prefix)
}

// ParseLocation parses a storage URI.
//
// For file URIs, baseDir is the account root. When baseDir is empty the
// whole URI path is the account root and the location is account-level.
func ParseLocation(uri, baseDir string) (*Location, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	// Parse manually so glob characters like ? are not taken as a query.
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected s3:// or file://)", ErrInvalidURI)
	}
	scheme := strings.ToLower(uri[:schemeEnd])
	remainder := uri[schemeEnd+3:]

	if match.HasMeta(remainder) {
		return nil, fmt.Errorf("%w: %s (use --include/--exclude to scope traversal)", ErrPatternURI, uri)
	}

	switch provider.ProviderType(scheme) {
	case provider.ProviderS3:
		return parseS3(remainder)
	case provider.ProviderFile:
		return parseFile(remainder, baseDir)
	}
	return nil, fmt.Errorf("%w: %s (supported: s3, file)", ErrUnsupportedProvider, scheme)
}

func parseS3(remainder string) (*Location, error) {
	loc := &Location{Provider: provider.ProviderS3}
	if remainder == "" {
		return loc, nil
	}

	bucket, key, _ := strings.Cut(remainder, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: missing bucket name in s3://%s", ErrInvalidURI, remainder)
	}
	if _, err := url.Parse("s3://" + bucket + "/"); err != nil {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	loc.Container = bucket
	loc.Prefix = match.NormalizePrefix(key)
	return loc, nil
}

func parseFile(remainder, baseDir string) (*Location, error) {
	if !strings.HasPrefix(remainder, "/") {
		return nil, fmt.Errorf("%w: file URIs need an absolute path (file:///path)", ErrInvalidURI)
	}
	p := filepath.Clean(remainder)

	if baseDir == "" {
		return &Location{Provider: provider.ProviderFile, BaseDir: p}, nil
	}

	base := filepath.Clean(baseDir)
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s is not under %s", ErrOutsideBaseDir, p, base)
	}

	loc := &Location{Provider: provider.ProviderFile, BaseDir: base}
	if rel == "." {
		return loc, nil
	}
	container, prefix, _ := strings.Cut(filepath.ToSlash(rel), "/")
	loc.Container = container
	loc.Prefix = match.NormalizePrefix(prefix)
	return loc, nil
}
