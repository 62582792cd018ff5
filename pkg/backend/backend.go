// Package backend defines the listing contract tree discovery consumes and an
// adapter that implements it on top of provider accounts.
//
// A StorageBackend answers two questions: which containers exist, and what
// lies under a prefix of one container (one level deep, or every descendant).
// Missing containers and prefixes list as empty; other failures are returned
// as *Error values classified by Kind.
package backend

import (
	"context"
	"time"

	"github.com/3leaps/lakemap/pkg/provider"
)

// PathEntry is one listing result.
type PathEntry struct {
	// Name is the container-relative key. It may still carry the listed
	// prefix; callers strip it.
	Name string

	IsDirectory bool

	// LastModified is zero when the backend does not report it (directories
	// from delimiter listings, for example).
	LastModified time.Time

	Size int64
}

// StorageBackend is the capability tree discovery and summarization read from.
//
// Implementations must be safe for concurrent use.
type StorageBackend interface {
	// ListContainers returns every container visible to the caller. Order is
	// unspecified.
	ListContainers(ctx context.Context) ([]provider.ContainerInfo, error)

	// ListChildren lists prefix within container. With recursive false only
	// direct children are returned and nested names never appear. With
	// recursive true every descendant file and directory is returned.
	// A missing container or prefix yields an empty result and no error.
	// The prefix is not normalized: "a//" lists below the empty segment.
	ListChildren(ctx context.Context, container, prefix string, recursive bool) ([]PathEntry, error)
}
