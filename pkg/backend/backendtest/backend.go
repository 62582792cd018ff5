// Package backendtest provides an in-memory backend.StorageBackend for tests.
package backendtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/match"
	"github.com/3leaps/lakemap/pkg/provider"
)

// Call records one ListChildren invocation.
type Call struct {
	Container string
	Prefix    string
	Recursive bool
}

// Backend holds containers of keys in memory. Keys are listed in insertion
// order, which makes discovery order deterministic in tests.
type Backend struct {
	mu         sync.Mutex
	containers []provider.ContainerInfo
	keys       map[string][]string
	failures   map[string]error
	listErr    error
	calls      []Call
	hook       func(Call)
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{keys: make(map[string][]string), failures: make(map[string]error)}
}

// AddContainer registers a container without keys.
func (b *Backend) AddContainer(name string) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addContainerLocked(name)
	return b
}

func (b *Backend) addContainerLocked(name string) {
	for _, c := range b.containers {
		if c.Name == name {
			return
		}
	}
	b.containers = append(b.containers, provider.ContainerInfo{
		Name:         name,
		LastModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
}

// Add stores keys in container, creating it if needed. Keys ending in "/"
// are directory markers.
func (b *Backend) Add(container string, keys ...string) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addContainerLocked(container)
	b.keys[container] = append(b.keys[container], keys...)
	return b
}

// FailOn makes ListChildren return err for the exact (container, prefix)
// pair, for both shallow and recursive listings. A missing trailing
// separator is added.
func (b *Backend) FailOn(container, prefix string, err error) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[container+"|"+match.EnsureTrailingSlash(prefix)] = err
	return b
}

// FailListContainers makes ListContainers return err.
func (b *Backend) FailListContainers(err error) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
	return b
}

// OnList registers fn to run at the start of every ListChildren call.
func (b *Backend) OnList(fn func(Call)) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = fn
	return b
}

// Calls returns the ListChildren invocations so far.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// RecursiveCalls counts recursive ListChildren invocations.
func (b *Backend) RecursiveCalls() int {
	n := 0
	for _, c := range b.Calls() {
		if c.Recursive {
			n++
		}
	}
	return n
}

// ListContainers implements backend.StorageBackend.
func (b *Backend) ListContainers(ctx context.Context) ([]provider.ContainerInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]provider.ContainerInfo(nil), b.containers...), nil
}

// ListChildren implements backend.StorageBackend.
func (b *Backend) ListChildren(ctx context.Context, container, prefix string, recursive bool) ([]backend.PathEntry, error) {
	prefix = match.EnsureTrailingSlash(prefix)
	call := Call{Container: container, Prefix: prefix, Recursive: recursive}

	b.mu.Lock()
	b.calls = append(b.calls, call)
	hook := b.hook
	failure := b.failures[container+"|"+prefix]
	keys := append([]string(nil), b.keys[container]...)
	b.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}

	var out []backend.PathEntry
	seen := make(map[string]struct{})
	add := func(e backend.PathEntry) {
		if _, ok := seen[e.Name]; ok {
			return
		}
		seen[e.Name] = struct{}{}
		out = append(out, e)
	}

	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rel := strings.TrimPrefix(key, prefix)
		if rel == "" {
			continue
		}
		segs := strings.Split(strings.TrimSuffix(rel, "/"), "/")
		isDir := strings.HasSuffix(rel, "/")

		if !recursive {
			if len(segs) > 1 || isDir {
				add(backend.PathEntry{Name: prefix + segs[0], IsDirectory: true})
				continue
			}
			add(fileEntry(key))
			continue
		}

		last := len(segs) - 1
		if isDir {
			last = len(segs)
		}
		for i := 1; i <= last; i++ {
			add(backend.PathEntry{Name: prefix + strings.Join(segs[:i], "/"), IsDirectory: true})
		}
		if !isDir {
			add(fileEntry(key))
		}
	}
	return out, nil
}

func fileEntry(key string) backend.PathEntry {
	return backend.PathEntry{
		Name:         key,
		Size:         int64(len(key)),
		LastModified: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	}
}

// ContainerNames returns the registered container names, sorted.
func (b *Backend) ContainerNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.containers))
	for i, c := range b.containers {
		names[i] = c.Name
	}
	sort.Strings(names)
	return names
}
