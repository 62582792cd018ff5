// Package provider is the object-storage surface lakemap discovers trees
// over.
//
// An Account enumerates containers (S3 buckets, directories under a base
// directory) and opens a Provider per container. A Provider pages through
// keys under a prefix; providers that can group keys on a delimiter also
// implement DelimiterLister, which tree discovery prefers for one-level
// listings. Credentials come from the SDK default chains.
package provider

import (
	"context"
	"time"
)

// ProviderType names a storage backend.
type ProviderType string

const (
	// ProviderS3 is AWS S3 or an S3-compatible endpoint.
	ProviderS3 ProviderType = "s3"

	// ProviderFile is a directory tree on local disk.
	ProviderFile ProviderType = "file"
)

func (p ProviderType) String() string {
	return string(p)
}

// ContainerInfo is one top-level container of an account.
type ContainerInfo struct {
	Name string

	// LastModified is the creation or modification time when the provider
	// reports one. Zero otherwise.
	LastModified time.Time
}

// ContainerLister enumerates the containers visible to the caller.
type ContainerLister interface {
	ListContainers(ctx context.Context) ([]ContainerInfo, error)
}

// Account is an account-scoped handle.
type Account interface {
	ContainerLister

	// Open binds a Provider to container. The container is not checked; the
	// first listing reports ErrBucketNotFound when it is missing.
	Open(ctx context.Context, container string) (Provider, error)

	Type() ProviderType
	Close() error
}

// Provider pages through the keys of one container. Implementations are
// safe for concurrent use.
type Provider interface {
	// List returns one page of keys starting with opts.Prefix. An empty
	// ContinuationToken in the result means the listing is complete.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	Close() error
}

// DelimiterLister lists one level below a prefix: objects whose remainder
// holds no delimiter, and the distinct child prefixes up to the next one.
// S3 maps it to ListObjectsV2 with Delimiter.
type DelimiterLister interface {
	ListWithDelimiter(ctx context.Context, opts ListWithDelimiterOptions) (*ListWithDelimiterResult, error)
}

type ListOptions struct {
	Prefix            string
	ContinuationToken string

	// MaxKeys is the page size. Zero uses the provider default (1000 on S3).
	MaxKeys int
}

type ListResult struct {
	Objects           []ObjectSummary
	ContinuationToken string
	IsTruncated       bool
}

type ListWithDelimiterOptions struct {
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int
}

type ListWithDelimiterResult struct {
	Objects []ObjectSummary

	// CommonPrefixes are full child prefixes, delimiter included
	// ("sales/2024/").
	CommonPrefixes []string

	ContinuationToken string
	IsTruncated       bool
}

// ObjectSummary is one listed key.
type ObjectSummary struct {
	// Key is relative to the container root.
	Key          string
	Size         int64
	LastModified time.Time
}
