// Package output provides JSONL output for discovery results.
//
// Output is structured as typed record envelopes containing tree nodes,
// container and folder summaries, datasets, errors, and a final summary.
// Each line is a self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/lakemap/pkg/classify"
	"github.com/3leaps/lakemap/pkg/tree"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: lakemap.<type>.v<version>
const (
	// TypeNode identifies flattened tree node records.
	TypeNode = "lakemap.node.v1"

	// TypeContainer identifies container summary records.
	TypeContainer = "lakemap.container.v1"

	// TypeFolder identifies folder summary records.
	TypeFolder = "lakemap.folder.v1"

	// TypeDataset identifies dataset records.
	TypeDataset = "lakemap.dataset.v1"

	// TypeError identifies error records.
	TypeError = "lakemap.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "lakemap.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "lakemap.node.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates every record of one command invocation.
	RunID string `json:"run_id"`

	// Provider identifies the storage provider (e.g., "s3", "file").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// NodeRecord is one tree node without its children. Parent links and depth
// let consumers rebuild the hierarchy.
type NodeRecord struct {
	ID              string            `json:"id"`
	ParentID        string            `json:"parent_id,omitempty"`
	Depth           int               `json:"depth"`
	Name            string            `json:"name"`
	Kind            tree.Kind         `json:"kind"`
	Path            string            `json:"path,omitempty"`
	Format          classify.Format   `json:"format,omitempty"`
	ContainerType   string            `json:"container_type,omitempty"`
	HasDatasetFiles bool              `json:"has_dataset_files"`
	Formats         []classify.Format `json:"formats"`
	LastModified    *time.Time        `json:"last_modified,omitempty"`
	Children        int               `json:"children"`
	Status          tree.Status       `json:"status"`
}

// NewNodeRecord flattens n.
func NewNodeRecord(n *tree.Node, parentID string, depth int) *NodeRecord {
	return &NodeRecord{
		ID:              n.ID,
		ParentID:        parentID,
		Depth:           depth,
		Name:            n.Name,
		Kind:            n.Kind,
		Path:            n.Path,
		Format:          n.Format,
		ContainerType:   string(n.ContainerType),
		HasDatasetFiles: n.Metadata.HasDatasetFiles,
		Formats:         n.Metadata.Formats,
		LastModified:    n.Metadata.LastModified,
		Children:        len(n.Children),
		Status:          n.Status,
	}
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire run,
// allowing partial results when some listings fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Container is the container being listed, if applicable.
	Container string `json:"container,omitempty"`

	// Path is the node path related to this error, if applicable.
	Path string `json:"path,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeAccessDenied indicates permission failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeNotFound indicates the container or prefix was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeTimeout indicates an operation timed out.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodePartial indicates a branch was not fully explored.
	ErrCodePartial = "PARTIAL"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	Containers int64 `json:"containers"`
	Folders    int64 `json:"folders"`
	Datasets   int64 `json:"datasets"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Errors is the count of nodes with failed listings.
	Errors int64 `json:"errors"`

	// Partial is true when any node is truncated or partial.
	Partial bool `json:"partial"`

	// Reasons lists the distinct truncation reasons, sorted.
	Reasons []string `json:"reasons,omitempty"`
}

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("writer is closed")

// WriteError is a failure to encode or emit a record. Op is "marshal" or
// "write".
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
