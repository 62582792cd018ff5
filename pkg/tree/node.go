package tree

import (
	"time"

	"github.com/3leaps/lakemap/pkg/classify"
)

// Kind is the role of a node in the tree.
type Kind string

const (
	KindRoot      Kind = "root"
	KindContainer Kind = "container"
	KindFolder    Kind = "folder"
	KindDataset   Kind = "dataset"
)

// State tells complete subtrees apart from ones that were not fully explored.
type State string

const (
	// StateComplete means every direct child was listed and expanded within
	// the configured limits.
	StateComplete State = "complete"

	// StateTruncated means expansion stopped on purpose (see Reason).
	StateTruncated State = "truncated"

	// StatePartial means a listing failed and the node holds what was
	// assembled before the failure.
	StatePartial State = "partial"
)

// Reason explains a truncated node.
type Reason string

const (
	ReasonDepth      Reason = "depth"
	ReasonMaxFolders Reason = "max-folders"
	ReasonScope      Reason = "scope"
	ReasonCanceled   Reason = "canceled"
)

// Status is the traversal outcome for one node.
type Status struct {
	State  State    `json:"state" yaml:"state"`
	Reason Reason   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Metadata summarizes dataset content below a node.
type Metadata struct {
	// HasDatasetFiles is true when at least one dataset file was found
	// anywhere in the node's subtree.
	HasDatasetFiles bool `json:"hasDatasetFiles" yaml:"hasDatasetFiles"`

	// Formats lists the dataset formats found in the subtree, sorted.
	Formats []classify.Format `json:"formats" yaml:"formats"`

	LastModified *time.Time `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
}

// Node is one element of a discovered tree.
//
// Children keep discovery order. Dataset nodes are leaves: their Children
// slice is always empty, never nil, so it serializes as [].
type Node struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Kind     Kind            `json:"kind" yaml:"kind"`
	Path     string          `json:"path,omitempty" yaml:"path,omitempty"`
	Format   classify.Format `json:"format,omitempty" yaml:"format,omitempty"`
	Children []*Node         `json:"children" yaml:"children"`
	Metadata Metadata        `json:"metadata" yaml:"metadata"`
	Status   Status          `json:"status" yaml:"status"`

	// ContainerType is set on container nodes only.
	ContainerType classify.ContainerType `json:"containerType,omitempty" yaml:"containerType,omitempty"`

	formats classify.FormatSet
}

func newNode(id, name string, kind Kind, path string) *Node {
	return &Node{
		ID:       id,
		Name:     name,
		Kind:     kind,
		Path:     path,
		Children: []*Node{},
		Metadata: Metadata{Formats: []classify.Format{}},
		Status:   Status{State: StateComplete},
	}
}

// NewRoot returns an empty synthetic root.
func NewRoot() *Node {
	return newNode(RootID, "Root", KindRoot, "")
}

// Walk calls fn for n and every descendant, depth first in child order.
// Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Child returns the direct child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Count returns the number of nodes of each kind in the tree rooted at n.
func (n *Node) Count() map[Kind]int {
	counts := make(map[Kind]int)
	n.Walk(func(x *Node) bool {
		counts[x.Kind]++
		return true
	})
	return counts
}

// Complete reports whether n and all its descendants are StateComplete.
func (n *Node) Complete() bool {
	ok := true
	n.Walk(func(x *Node) bool {
		if x.Status.State != StateComplete {
			ok = false
		}
		return ok
	})
	return ok
}

func (n *Node) truncate(reason Reason) {
	if n.Status.State == StatePartial {
		return
	}
	n.Status.State = StateTruncated
	n.Status.Reason = reason
}

func (n *Node) fail(err error) {
	n.Status.State = StatePartial
	n.Status.Errors = append(n.Status.Errors, err.Error())
}

func (n *Node) addFormat(f classify.Format) {
	n.formats.Add(f)
	n.Metadata.HasDatasetFiles = true
	n.Metadata.Formats = n.formats.Sorted()
}

func (n *Node) touch(t time.Time) {
	if t.IsZero() {
		return
	}
	if n.Metadata.LastModified == nil || t.After(*n.Metadata.LastModified) {
		ts := t
		n.Metadata.LastModified = &ts
	}
}

// absorb folds child metadata into n.
func (n *Node) absorb(child *Node) {
	for _, f := range child.formats.Sorted() {
		n.addFormat(f)
	}
	if child.Metadata.HasDatasetFiles {
		n.Metadata.HasDatasetFiles = true
	}
	if child.Metadata.LastModified != nil {
		n.touch(*child.Metadata.LastModified)
	}
}
