// Package file implements the provider interfaces over a local directory.
//
// The account base directory holds one subdirectory per container; keys are
// slash-separated paths relative to the container directory. It backs local
// data-lake mirrors and the test suites.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/3leaps/lakemap/pkg/provider"
)

// DefaultMaxKeys is the page size used when ListOptions.MaxKeys is zero.
const DefaultMaxKeys = 1000

// Provider implements provider.Provider for one container directory.
type Provider struct {
	baseDir   string
	container string
}

var (
	_ provider.Provider        = (*Provider)(nil)
	_ provider.DelimiterLister = (*Provider)(nil)
)

// Config configures a file provider or account.
type Config struct {
	// BaseDir is the container directory for New, or the account root for
	// NewAccount.
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// New creates a provider rooted at cfg.BaseDir.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	return &Provider{baseDir: base, container: filepath.Base(base)}, nil
}

func (p *Provider) Close() error { return nil }

// List returns a page of files under opts.Prefix, walking subdirectories.
// Keys are returned in lexical order; the continuation token is the last key
// of the previous page.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	prefix := strings.TrimPrefix(opts.Prefix, "/")
	entries, err := p.collect(ctx, prefix)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	start := 0
	if opts.ContinuationToken != "" {
		start = sort.Search(len(entries), func(i int) bool { return entries[i].Key > opts.ContinuationToken })
	}
	end := min(start+maxKeys, len(entries))

	res := &provider.ListResult{Objects: append([]provider.ObjectSummary(nil), entries[start:end]...)}
	if end < len(entries) {
		res.IsTruncated = true
		res.ContinuationToken = entries[end-1].Key
	}
	return res, nil
}

// ListWithDelimiter returns the files directly under opts.Prefix and one
// common prefix per subdirectory. Only "/" is supported as delimiter. The
// whole level is returned in a single page.
func (p *Provider) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	if opts.Delimiter != "" && opts.Delimiter != "/" {
		return nil, p.wrapError("ListWithDelimiter", opts.Prefix, fmt.Errorf("unsupported delimiter %q", opts.Delimiter))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := strings.TrimPrefix(opts.Prefix, "/")
	dirKey, namePrefix := splitPrefix(prefix)

	dir, err := p.fullPath(dirKey)
	if err != nil {
		return nil, p.wrapError("ListWithDelimiter", opts.Prefix, err)
	}

	res := &provider.ListWithDelimiterResult{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) || isNotDir(err) {
			return p.missingOrEmpty(opts.Prefix, res)
		}
		return nil, p.wrapError("ListWithDelimiter", opts.Prefix, err)
	}

	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), namePrefix) {
			continue
		}
		key := dirKey + e.Name()
		if e.IsDir() {
			res.CommonPrefixes = append(res.CommonPrefixes, key+"/")
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		res.Objects = append(res.Objects, provider.ObjectSummary{Key: key, Size: info.Size(), LastModified: info.ModTime()})
	}
	return res, nil
}

// missingOrEmpty distinguishes a missing container from a missing prefix.
func (p *Provider) missingOrEmpty(prefix string, empty *provider.ListWithDelimiterResult) (*provider.ListWithDelimiterResult, error) {
	if _, err := os.Stat(p.baseDir); err != nil {
		return nil, &provider.ProviderError{Op: "ListWithDelimiter", Provider: provider.ProviderFile, Bucket: p.container, Key: prefix, Err: provider.ErrBucketNotFound}
	}
	return empty, nil
}

func (p *Provider) fullPath(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	clean := strings.TrimPrefix(filepath.Clean("/"+key), "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(clean)), nil
}

// collect walks the deepest directory implied by prefix and returns the files
// whose key starts with prefix, sorted by key.
func (p *Provider) collect(ctx context.Context, prefix string) ([]provider.ObjectSummary, error) {
	if _, err := os.Stat(p.baseDir); err != nil {
		if os.IsNotExist(err) {
			return nil, provider.ErrBucketNotFound
		}
		return nil, err
	}

	dirKey, _ := splitPrefix(prefix)
	root, err := p.fullPath(dirKey)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) || isNotDir(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []provider.ObjectSummary
	err = filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.baseDir, full)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, provider.ObjectSummary{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: p.container, Key: key, Err: err}
	switch {
	case os.IsNotExist(err):
		wrapped.Err = provider.ErrNotFound
	case os.IsPermission(err):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}

// splitPrefix splits "a/b/c" into directory key "a/b/" and name prefix "c".
func splitPrefix(prefix string) (dirKey, namePrefix string) {
	idx := strings.LastIndex(prefix, "/")
	if idx < 0 {
		return "", prefix
	}
	return prefix[:idx+1], prefix[idx+1:]
}

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}
