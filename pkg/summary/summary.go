// Package summary computes flat, one-level summaries of containers and
// folders, and flat dataset listings, for endpoints that do not need a tree.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/classify"
	"github.com/3leaps/lakemap/pkg/match"
	"github.com/3leaps/lakemap/pkg/provider"
	"github.com/3leaps/lakemap/pkg/tree"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Container summarizes one container's root level.
type Container struct {
	ID              string                 `json:"id" yaml:"id"`
	Name            string                 `json:"name" yaml:"name"`
	Type            classify.ContainerType `json:"type" yaml:"type"`
	Path            string                 `json:"path" yaml:"path"`
	LastModified    *time.Time             `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
	FolderCount     int                    `json:"folderCount" yaml:"folderCount"`
	EntryCount      int                    `json:"entryCount" yaml:"entryCount"`
	HasDatasetFiles bool                   `json:"hasDatasetFiles" yaml:"hasDatasetFiles"`
	DatasetFormats  []classify.Format      `json:"datasetFormats" yaml:"datasetFormats"`
}

// Folder summarizes one folder level.
type Folder struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	Path            string            `json:"path" yaml:"path"`
	ContainerName   string            `json:"containerName" yaml:"containerName"`
	FolderCount     int               `json:"folderCount" yaml:"folderCount"`
	EntryCount      int               `json:"entryCount" yaml:"entryCount"`
	HasDatasetFiles bool              `json:"hasDatasetFiles" yaml:"hasDatasetFiles"`
	DatasetFormats  []classify.Format `json:"datasetFormats" yaml:"datasetFormats"`
}

// Dataset is one dataset file found by a recursive listing.
type Dataset struct {
	ID            string          `json:"id" yaml:"id"`
	Name          string          `json:"name" yaml:"name"`
	Path          string          `json:"path" yaml:"path"`
	Format        classify.Format `json:"format" yaml:"format"`
	ContainerName string          `json:"containerName" yaml:"containerName"`
	FolderPath    string          `json:"folderPath" yaml:"folderPath"`
	LastModified  *time.Time      `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
	Size          int64           `json:"size" yaml:"size"`
}

// Scope selects where ListDatasets looks. An empty Container means every
// container passing Filter; Folder narrows a single container.
type Scope struct {
	Container string
	Folder    string
	Filter    []string
}

// Config configures a Summarizer.
type Config struct {
	// IDs selects id generation, shared with tree builds.
	// Default: tree.IDsEphemeral
	IDs tree.IDMode

	Logger *zap.Logger
}

// Summarizer computes summaries over a backend.
type Summarizer struct {
	backend backend.StorageBackend
	ids     tree.IDMode
	logger  *zap.Logger
}

// New creates a summarizer.
func New(b backend.StorageBackend, cfg Config) *Summarizer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := cfg.IDs
	if ids == "" {
		ids = tree.IDsEphemeral
	}
	return &Summarizer{backend: b, ids: ids, logger: logger}
}

func (s *Summarizer) id(kind tree.Kind, key string) string {
	if s.ids == tree.IDsStable {
		return tree.StableID(kind, key)
	}
	return uuid.NewString()
}

// ListTopFolders returns the distinct first segments of the container root
// listing, in discovery order.
func (s *Summarizer) ListTopFolders(ctx context.Context, container string) ([]string, error) {
	entries, err := s.backend.ListChildren(ctx, container, "", false)
	if err != nil {
		return nil, err
	}
	return firstSegments(entries, ""), nil
}

// SummarizeFolder summarizes folder inside container. folderCount counts the
// distinct first segments of the folder's shallow listing and entryCount its
// entries; dataset presence comes from one recursive listing.
func (s *Summarizer) SummarizeFolder(ctx context.Context, container, folder string) (*Folder, error) {
	prefix := match.NormalizePrefix(folder)
	if prefix == "" {
		return nil, fmt.Errorf("folder path is required")
	}

	folders, entries, formats, err := s.level(ctx, container, prefix)
	if err != nil {
		return nil, err
	}

	p := match.JoinKey(container, prefix)
	return &Folder{
		ID:              s.id(tree.KindFolder, p),
		Name:            lastSegment(prefix),
		Path:            p,
		ContainerName:   container,
		FolderCount:     folders,
		EntryCount:      entries,
		HasDatasetFiles: formats.Len() > 0,
		DatasetFormats:  formats.Sorted(),
	}, nil
}

// SummarizeContainer summarizes the root level of a container.
func (s *Summarizer) SummarizeContainer(ctx context.Context, info provider.ContainerInfo) (*Container, error) {
	folders, entries, formats, err := s.level(ctx, info.Name, "")
	if err != nil {
		return nil, err
	}

	c := &Container{
		ID:              s.id(tree.KindContainer, info.Name),
		Name:            info.Name,
		Type:            classify.ContainerTypeOf(info.Name),
		Path:            info.Name,
		FolderCount:     folders,
		EntryCount:      entries,
		HasDatasetFiles: formats.Len() > 0,
		DatasetFormats:  formats.Sorted(),
	}
	if !info.LastModified.IsZero() {
		ts := info.LastModified
		c.LastModified = &ts
	}
	return c, nil
}

// ListContainers summarizes every container passing filter. Failing to
// enumerate containers is fatal; so is failing to summarize any of them.
func (s *Summarizer) ListContainers(ctx context.Context, filter []string) ([]*Container, error) {
	infos, err := s.backend.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	selected := tree.FilterContainers(infos, filter)
	out := make([]*Container, 0, len(selected))
	for _, info := range selected {
		c, err := s.SummarizeContainer(ctx, info)
		if err != nil {
			return nil, fmt.Errorf("summarize container %s: %w", info.Name, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ListFolders summarizes every top-level folder of container.
func (s *Summarizer) ListFolders(ctx context.Context, container string) ([]*Folder, error) {
	names, err := s.ListTopFolders(ctx, container)
	if err != nil {
		return nil, err
	}

	out := make([]*Folder, 0, len(names))
	for _, name := range names {
		f, err := s.SummarizeFolder(ctx, container, name)
		if err != nil {
			return nil, fmt.Errorf("summarize folder %s/%s: %w", container, name, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// ListDatasets returns the dataset files under scope in listing order.
func (s *Summarizer) ListDatasets(ctx context.Context, scope Scope) ([]*Dataset, error) {
	var containers []string
	if scope.Container != "" {
		containers = []string{scope.Container}
	} else {
		if scope.Folder != "" {
			return nil, fmt.Errorf("folder scope requires a container")
		}
		infos, err := s.backend.ListContainers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list containers: %w", err)
		}
		for _, info := range tree.FilterContainers(infos, scope.Filter) {
			containers = append(containers, info.Name)
		}
	}

	prefix := match.NormalizePrefix(scope.Folder)
	out := []*Dataset{}
	for _, container := range containers {
		entries, err := s.backend.ListChildren(ctx, container, prefix, true)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			f, ok := classify.DatasetFormatOf(e.Name, e.IsDirectory)
			if !ok {
				continue
			}
			out = append(out, s.dataset(container, prefix, e, f))
		}
	}

	s.logger.Debug("Listed datasets",
		zap.Int("containers", len(containers)),
		zap.String("folder", prefix),
		zap.Int("datasets", len(out)),
	)
	return out, nil
}

func (s *Summarizer) dataset(container, prefix string, e backend.PathEntry, f classify.Format) *Dataset {
	key := prefix + match.StripPrefix(e.Name, prefix)
	p := match.JoinKey(container, key)

	folderPath := container
	if idx := strings.LastIndex(key, match.Separator); idx >= 0 {
		folderPath = match.JoinKey(container, key[:idx])
	}

	d := &Dataset{
		ID:            s.id(tree.KindDataset, p),
		Name:          classify.DatasetBaseName(key),
		Path:          p,
		Format:        f,
		ContainerName: container,
		FolderPath:    folderPath,
		Size:          e.Size,
	}
	if !e.LastModified.IsZero() {
		ts := e.LastModified
		d.LastModified = &ts
	}
	return d
}

// level computes the shallow counts and the recursive dataset formats for
// prefix.
func (s *Summarizer) level(ctx context.Context, container, prefix string) (int, int, classify.FormatSet, error) {
	var formats classify.FormatSet

	shallow, err := s.backend.ListChildren(ctx, container, prefix, false)
	if err != nil {
		return 0, 0, formats, err
	}
	entries := 0
	for _, e := range shallow {
		if match.StripPrefix(e.Name, prefix) != "" {
			entries++
		}
	}

	deep, err := s.backend.ListChildren(ctx, container, prefix, true)
	if err != nil {
		return 0, 0, formats, err
	}
	for _, e := range deep {
		if f, ok := classify.DatasetFormatOf(e.Name, e.IsDirectory); ok {
			formats.Add(f)
		}
	}

	return len(firstSegments(shallow, prefix)), entries, formats, nil
}

func firstSegments(entries []backend.PathEntry, prefix string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, e := range entries {
		rel := match.StripPrefix(e.Name, prefix)
		if rel == "" {
			continue
		}
		seg, _ := match.FirstSegment(rel)
		if seg == "" {
			continue
		}
		if _, ok := seen[seg]; ok {
			continue
		}
		seen[seg] = struct{}{}
		out = append(out, seg)
	}
	return out
}

func lastSegment(prefix string) string {
	trimmed := strings.TrimSuffix(prefix, match.Separator)
	if idx := strings.LastIndex(trimmed, match.Separator); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
