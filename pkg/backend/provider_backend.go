package backend

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/lakemap/pkg/match"
	"github.com/3leaps/lakemap/pkg/provider"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures a ProviderBackend.
type Config struct {
	// RateLimit is the maximum provider requests per second across all
	// containers. Zero means unlimited.
	// Default: 0
	RateLimit float64

	// MaxKeys is the page size requested from the provider.
	// Zero uses the provider default.
	MaxKeys int

	// Logger receives a debug line per listing. Nil discards.
	Logger *zap.Logger

	// Metrics records call counts and latency. Nil disables.
	Metrics *Metrics
}

// ProviderBackend implements StorageBackend over a provider.Account.
//
// Shallow listings use provider.DelimiterLister when the container provider
// supports it and fold a recursive listing otherwise. Recursive listings page
// through provider.List and synthesize an entry for every intermediate
// directory. Container providers are opened lazily and cached until Close.
type ProviderBackend struct {
	account provider.Account
	config  Config
	logger  *zap.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	providers map[string]provider.Provider
}

// New creates a backend over account. The backend owns account and closes it
// on Close.
func New(account provider.Account, cfg Config) *ProviderBackend {
	b := &ProviderBackend{
		account:   account,
		config:    cfg,
		logger:    cfg.Logger,
		providers: make(map[string]provider.Provider),
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if cfg.RateLimit > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return b
}

// Type reports the provider behind the backend.
func (b *ProviderBackend) Type() provider.ProviderType {
	return b.account.Type()
}

// ListContainers enumerates containers through the account.
func (b *ProviderBackend) ListContainers(ctx context.Context) ([]provider.ContainerInfo, error) {
	started := time.Now()
	if err := b.wait(ctx); err != nil {
		return nil, wrap("ListContainers", "", "", err)
	}

	containers, err := b.account.ListContainers(ctx)
	err = wrap("ListContainers", "", "", err)
	b.config.Metrics.observe("ListContainers", started, len(containers), err)
	b.logger.Debug("Listed containers",
		zap.Int("containers", len(containers)),
		zap.Duration("duration", time.Since(started)),
		zap.Error(err),
	)
	if err != nil {
		return nil, err
	}
	return containers, nil
}

// ListChildren lists prefix inside container. The prefix is used as given
// apart from a missing trailing separator, so keys with empty segments stay
// reachable.
func (b *ProviderBackend) ListChildren(ctx context.Context, container, prefix string, recursive bool) ([]PathEntry, error) {
	op := "ListChildren"
	if recursive {
		op = "ListChildrenRecursive"
	}
	started := time.Now()
	listPrefix := match.EnsureTrailingSlash(prefix)

	entries, err := b.listChildren(ctx, container, listPrefix, recursive)
	if err != nil && Classify(err) == KindNotFound {
		entries, err = nil, nil
	}
	err = wrap(op, container, listPrefix, err)

	b.config.Metrics.observe(op, started, len(entries), err)
	b.logger.Debug("Listed children",
		zap.String("container", container),
		zap.String("prefix", listPrefix),
		zap.Bool("recursive", recursive),
		zap.Int("entries", len(entries)),
		zap.Duration("duration", time.Since(started)),
		zap.Error(err),
	)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *ProviderBackend) listChildren(ctx context.Context, container, prefix string, recursive bool) ([]PathEntry, error) {
	p, err := b.open(ctx, container)
	if err != nil {
		return nil, err
	}
	if recursive {
		return b.listRecursive(ctx, p, prefix)
	}
	if dl, ok := p.(provider.DelimiterLister); ok {
		return b.listShallow(ctx, dl, prefix)
	}

	all, err := b.listRecursive(ctx, p, prefix)
	if err != nil {
		return nil, err
	}
	return foldLevel(all, prefix), nil
}

// listShallow pages a delimiter listing. Common prefixes become directory
// entries and directory-marker objects ("dir/") become directories too.
func (b *ProviderBackend) listShallow(ctx context.Context, dl provider.DelimiterLister, prefix string) ([]PathEntry, error) {
	var entries []PathEntry
	seen := make(map[string]struct{})
	addDir := func(raw string) {
		if raw == "" {
			return
		}
		name := strings.TrimSuffix(raw, match.Separator)
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		entries = append(entries, PathEntry{Name: name, IsDirectory: true})
	}

	token := ""
	for {
		if err := b.wait(ctx); err != nil {
			return nil, err
		}
		res, err := dl.ListWithDelimiter(ctx, provider.ListWithDelimiterOptions{
			Prefix:            prefix,
			Delimiter:         match.Separator,
			ContinuationToken: token,
			MaxKeys:           b.config.MaxKeys,
		})
		if err != nil {
			return nil, err
		}

		for _, obj := range res.Objects {
			if match.HasTrailingSlash(obj.Key) {
				if obj.Key != prefix {
					addDir(obj.Key)
				}
				continue
			}
			entries = append(entries, PathEntry{Name: obj.Key, LastModified: obj.LastModified, Size: obj.Size})
		}
		for _, cp := range res.CommonPrefixes {
			addDir(cp)
		}

		if !res.IsTruncated || res.ContinuationToken == "" {
			return entries, nil
		}
		token = res.ContinuationToken
	}
}

// listRecursive pages a flat listing and emits each intermediate directory
// once, before the first key beneath it.
func (b *ProviderBackend) listRecursive(ctx context.Context, p provider.Provider, prefix string) ([]PathEntry, error) {
	var entries []PathEntry
	seen := make(map[string]struct{})

	token := ""
	for {
		if err := b.wait(ctx); err != nil {
			return nil, err
		}
		res, err := p.List(ctx, provider.ListOptions{
			Prefix:            prefix,
			ContinuationToken: token,
			MaxKeys:           b.config.MaxKeys,
		})
		if err != nil {
			return nil, err
		}

		for _, obj := range res.Objects {
			entries = appendWithParents(entries, seen, prefix, obj)
		}

		if !res.IsTruncated || res.ContinuationToken == "" {
			return entries, nil
		}
		token = res.ContinuationToken
	}
}

func appendWithParents(entries []PathEntry, seen map[string]struct{}, prefix string, obj provider.ObjectSummary) []PathEntry {
	rel := match.StripPrefix(obj.Key, prefix)
	isMarker := match.HasTrailingSlash(obj.Key)
	segs := strings.Split(strings.TrimSuffix(rel, match.Separator), match.Separator)

	dirs := len(segs) - 1
	if isMarker {
		dirs = len(segs)
	}
	for i := 1; i <= dirs; i++ {
		name := match.JoinKey(prefix, strings.Join(segs[:i], match.Separator))
		if segs[i-1] == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		entries = append(entries, PathEntry{Name: name, IsDirectory: true})
	}
	if isMarker {
		return entries
	}
	return append(entries, PathEntry{Name: obj.Key, LastModified: obj.LastModified, Size: obj.Size})
}

// foldLevel reduces a recursive listing to the direct children of prefix.
func foldLevel(all []PathEntry, prefix string) []PathEntry {
	out := make([]PathEntry, 0, len(all))
	for _, e := range all {
		rel := match.StripPrefix(e.Name, prefix)
		if rel == "" || strings.Contains(rel, match.Separator) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (b *ProviderBackend) open(ctx context.Context, container string) (provider.Provider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.providers[container]; ok {
		return p, nil
	}
	p, err := b.account.Open(ctx, container)
	if err != nil {
		return nil, err
	}
	b.providers[container] = p
	return p, nil
}

func (b *ProviderBackend) wait(ctx context.Context) error {
	if b.limiter == nil {
		return ctx.Err()
	}
	return b.limiter.Wait(ctx)
}

// Close closes every opened container provider and the account.
func (b *ProviderBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for name, p := range b.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.providers, name)
	}
	if err := b.account.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
