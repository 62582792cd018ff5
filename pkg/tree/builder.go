// Package tree turns flat prefix listings into a bounded-depth tree of
// containers, folders and datasets.
//
// A Builder lists one level at a time through a backend.StorageBackend,
// classifies each entry, and descends into child folders until the depth
// budget runs out. Listing failures below the container level are recorded
// on the affected node and traversal continues with its siblings;
// authentication failures abort the build.
package tree

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/classify"
	"github.com/3leaps/lakemap/pkg/match"
	"github.com/3leaps/lakemap/pkg/provider"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Strategy selects how folder metadata is computed.
type Strategy string

const (
	// StrategyBottomUp derives folder metadata from the descent itself and
	// scans recursively only where the depth budget cuts the tree.
	StrategyBottomUp Strategy = "bottom-up"

	// StrategyScan runs one recursive listing per folder before descending.
	StrategyScan Strategy = "scan"
)

// IDMode selects how node ids are generated.
type IDMode string

const (
	// IDsEphemeral assigns a random id per build.
	IDsEphemeral IDMode = "ephemeral"

	// IDsStable derives ids from kind and path, so rebuilding the same
	// storage yields the same ids.
	IDsStable IDMode = "stable"
)

// RootID is the id of the synthetic root node.
const RootID = "root"

// Config configures a Builder.
type Config struct {
	// Depth is the number of levels expanded below the starting node.
	// Default: 10
	Depth int

	// Parallel is the number of listings in flight at once.
	// Default: 1
	Parallel int

	// MaxFolders caps the folder nodes created per build.
	// Default: 50000
	MaxFolders int

	// Scope restricts which folders are entered. Nil allows all.
	Scope *match.Scope

	// IDs selects id generation.
	// Default: IDsEphemeral
	IDs IDMode

	// Strategy selects folder metadata computation.
	// Default: StrategyBottomUp
	Strategy Strategy

	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultConfig returns the default builder configuration.
func DefaultConfig() Config {
	return Config{
		Depth:      10,
		Parallel:   1,
		MaxFolders: 50_000,
		IDs:        IDsEphemeral,
		Strategy:   StrategyBottomUp,
	}
}

// ParseStrategy validates a strategy name. Empty selects the default.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyBottomUp:
		return StrategyBottomUp, nil
	case StrategyScan:
		return StrategyScan, nil
	}
	return "", fmt.Errorf("unknown tree strategy %q (expected bottom-up or scan)", s)
}

// ParseIDMode validates an id mode name. Empty selects the default.
func ParseIDMode(s string) (IDMode, error) {
	switch IDMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", IDsEphemeral:
		return IDsEphemeral, nil
	case IDsStable:
		return IDsStable, nil
	}
	return "", fmt.Errorf("unknown id mode %q (expected ephemeral or stable)", s)
}

// Builder builds trees over a backend. It holds no per-build state and is
// safe for concurrent use.
type Builder struct {
	backend backend.StorageBackend
	config  Config
	logger  *zap.Logger
}

// New creates a builder. Zero config fields take their defaults.
func New(b backend.StorageBackend, cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.Depth <= 0 {
		cfg.Depth = def.Depth
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = def.Parallel
	}
	if cfg.MaxFolders <= 0 {
		cfg.MaxFolders = def.MaxFolders
	}
	if cfg.IDs == "" {
		cfg.IDs = def.IDs
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{backend: b, config: cfg, logger: logger}
}

// Config returns the effective configuration.
func (b *Builder) Config() Config {
	return b.config
}

// Build expands prefix inside container. With an empty prefix the result is
// a container node; otherwise it is the folder node for prefix.
//
// On context cancellation Build returns the partially built tree together
// with the context error. Authentication failures return a nil node.
func (b *Builder) Build(ctx context.Context, container, prefix string) (*Node, error) {
	started := time.Now()
	run := b.newRun(ctx)

	prefix = match.NormalizePrefix(prefix)
	var n *Node
	if prefix == "" {
		n = run.containerNode(provider.ContainerInfo{Name: container})
	} else {
		n = run.folderNode(container, prefix)
	}

	err := run.expand(n, container, []string{prefix}, b.config.Depth)
	b.config.Metrics.observeBuild(started, n, err)
	if err != nil {
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return n, cerr
	}
	return n, nil
}

// BuildFullTree builds one container node per container passing filter under
// a synthetic root. Filter entries match container names case-insensitively;
// an empty filter selects every container. A failure to list containers is
// fatal.
func (b *Builder) BuildFullTree(ctx context.Context, filter []string) (*Node, error) {
	started := time.Now()

	containers, err := b.backend.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	run := b.newRun(ctx)

	root := NewRoot()
	selected := FilterContainers(containers, filter)
	for _, info := range selected {
		root.Children = append(root.Children, run.containerNode(info))
	}

	err = run.fanOut(len(root.Children), func(i int) error {
		child := root.Children[i]
		return run.expand(child, child.Name, []string{""}, b.config.Depth)
	})
	for _, child := range root.Children {
		root.absorb(child)
	}

	b.config.Metrics.observeBuild(started, root, err)
	if err != nil {
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return root, cerr
	}
	b.logger.Debug("Built full tree",
		zap.Int("containers", len(selected)),
		zap.Int64("folders", run.folders.Load()),
		zap.Duration("duration", time.Since(started)),
	)
	return root, nil
}

// FilterContainers keeps containers whose name matches a filter entry
// case-insensitively. An empty filter keeps all. Order is preserved.
func FilterContainers(containers []provider.ContainerInfo, filter []string) []provider.ContainerInfo {
	if len(filter) == 0 {
		return containers
	}
	want := make(map[string]struct{}, len(filter))
	for _, f := range filter {
		if f = strings.TrimSpace(f); f != "" {
			want[strings.ToLower(f)] = struct{}{}
		}
	}
	if len(want) == 0 {
		return containers
	}

	out := make([]provider.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		if _, ok := want[strings.ToLower(c.Name)]; ok {
			out = append(out, c)
		}
	}
	return out
}

// StableID derives the id IDsStable assigns to the node of kind at key.
func StableID(kind Kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("lakemap:"+string(kind)+":"+key)).String()
}

// run is the state of one build.
type run struct {
	*Builder
	ctx     context.Context
	sem     chan struct{}
	folders atomic.Int64
}

func (b *Builder) newRun(ctx context.Context) *run {
	return &run{Builder: b, ctx: ctx, sem: make(chan struct{}, b.config.Parallel)}
}

func (r *run) id(kind Kind, key string) string {
	if r.config.IDs == IDsStable {
		return StableID(kind, key)
	}
	return uuid.NewString()
}

func (r *run) containerNode(info provider.ContainerInfo) *Node {
	n := newNode(r.id(KindContainer, info.Name), info.Name, KindContainer, info.Name)
	n.ContainerType = classify.ContainerTypeOf(info.Name)
	n.touch(info.LastModified)
	return n
}

func (r *run) folderNode(container, prefix string) *Node {
	p := match.JoinKey(container, prefix)
	name := path.Base(strings.TrimSuffix(prefix, match.Separator))
	return newNode(r.id(KindFolder, p), name, KindFolder, p)
}

func (r *run) datasetNode(container, key string, e backend.PathEntry, f classify.Format) *Node {
	p := match.JoinKey(container, key)
	n := newNode(r.id(KindDataset, p), classify.DatasetBaseName(key), KindDataset, p)
	n.Format = f
	n.addFormat(f)
	n.touch(e.LastModified)
	return n
}

// list performs one backend listing under the concurrency limit.
func (r *run) list(container, prefix string, recursive bool) ([]backend.PathEntry, error) {
	select {
	case r.sem <- struct{}{}:
	case <-r.ctx.Done():
		return nil, r.ctx.Err()
	}
	defer func() { <-r.sem }()
	return r.backend.ListChildren(r.ctx, container, prefix, recursive)
}

// handleListError records err on n. It returns err only when the build must
// stop.
func (r *run) handleListError(n *Node, container, prefix string, err error) error {
	switch {
	case backend.IsAuth(err):
		return err
	case backend.IsCanceled(err) || r.ctx.Err() != nil:
		n.truncate(ReasonCanceled)
		return nil
	default:
		r.logger.Warn("Listing failed, keeping partial branch",
			zap.String("container", container),
			zap.String("prefix", prefix),
			zap.Error(err),
		)
		n.fail(err)
		return nil
	}
}

// expand lists prefixes and fills n with their children, descending depth
// more levels. Every prefix names the same logical folder: a directory whose
// name is empty below a listed prefix (the "a//" in "a//b.parquet") adds its
// raw name to the set instead of becoming a child.
func (r *run) expand(n *Node, container string, prefixes []string, depth int) error {
	if r.ctx.Err() != nil {
		n.truncate(ReasonCanceled)
		return nil
	}
	if depth <= 0 {
		n.truncate(ReasonDepth)
		if r.config.Strategy == StrategyBottomUp && n.Kind != KindDataset {
			return r.scanAll(n, container, prefixes)
		}
		return nil
	}

	var (
		folders []*Node
		raw     [][]string
	)
	bySegment := make(map[string]int)
	datasets := make(map[string]struct{})
	queued := make(map[string]struct{}, len(prefixes))
	queue := append([]string(nil), prefixes...)
	for _, p := range queue {
		queued[p] = struct{}{}
	}

	for i := 0; i < len(queue); i++ {
		prefix := queue[i]
		entries, err := r.list(container, prefix, false)
		if err != nil {
			if err := r.handleListError(n, container, prefix, err); err != nil {
				return err
			}
			continue
		}

		for _, e := range entries {
			rel := match.StripPrefix(e.Name, prefix)
			if rel == "" {
				if !e.IsDirectory {
					continue
				}
				// Directory names carry no trailing separator, so "a//"
				// arrives as "a/" and lists again as "a//".
				next := e.Name + match.Separator
				if _, ok := queued[next]; !ok {
					queued[next] = struct{}{}
					queue = append(queue, next)
				}
				continue
			}

			segment, nested := match.FirstSegment(rel)
			if !nested && !e.IsDirectory {
				key := match.JoinKey(prefix, rel)
				if _, dup := datasets[key]; dup {
					continue
				}
				if f, ok := classify.DatasetFormatOf(key, false); ok {
					datasets[key] = struct{}{}
					n.Children = append(n.Children, r.datasetNode(container, key, e, f))
					n.addFormat(f)
					n.touch(e.LastModified)
				}
				continue
			}

			if segment == "" {
				continue
			}
			childRaw := prefix + segment + match.Separator
			if idx, dup := bySegment[segment]; dup {
				if idx >= 0 {
					raw[idx] = append(raw[idx], childRaw)
				}
				continue
			}
			bySegment[segment] = -1

			childPrefix := match.NormalizePrefix(childRaw)
			if !r.config.Scope.Allow(childPrefix) {
				n.truncate(ReasonScope)
				continue
			}
			if r.folders.Add(1) > int64(r.config.MaxFolders) {
				n.truncate(ReasonMaxFolders)
				continue
			}

			bySegment[segment] = len(folders)
			n.Children = append(n.Children, r.folderNode(container, childPrefix))
			folders = append(folders, n.Children[len(n.Children)-1])
			raw = append(raw, []string{childRaw})
		}
	}

	if r.config.Strategy == StrategyScan {
		for i, child := range folders {
			if err := r.scanAll(child, container, raw[i]); err != nil {
				return err
			}
		}
	}

	err := r.fanOut(len(folders), func(i int) error {
		return r.expand(folders[i], container, raw[i], depth-1)
	})
	for _, child := range folders {
		n.absorb(child)
	}
	return err
}

func (r *run) scanAll(n *Node, container string, prefixes []string) error {
	for _, p := range prefixes {
		if err := r.scan(n, container, p); err != nil {
			return err
		}
	}
	return nil
}

// scan marks n with the dataset formats found anywhere below prefix using a
// single recursive listing.
func (r *run) scan(n *Node, container, prefix string) error {
	entries, err := r.list(container, prefix, true)
	if err != nil {
		return r.handleListError(n, container, prefix, err)
	}
	for _, e := range entries {
		if f, ok := classify.DatasetFormatOf(e.Name, e.IsDirectory); ok {
			n.addFormat(f)
			n.touch(e.LastModified)
		}
	}
	return nil
}

// fanOut runs fn for indexes [0, count), concurrently when Parallel > 1,
// and returns the first error. Listings stay bounded by the run semaphore.
func (r *run) fanOut(count int, fn func(i int) error) error {
	if r.config.Parallel <= 1 || count < 2 {
		for i := 0; i < count; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for i := 0; i < count; i++ {
		idx := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(idx); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}
