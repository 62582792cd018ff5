package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/3leaps/lakemap/pkg/provider"
)

// Account enumerates buckets and opens bucket-scoped providers that share
// one S3 client.
type Account struct {
	client  api
	maxKeys int
}

var _ provider.Account = (*Account)(nil)

// NewAccount creates an account handle. cfg.Bucket is ignored.
func NewAccount(ctx context.Context, cfg Config) (*Account, error) {
	if err := cfg.validateCredentials(); err != nil {
		return nil, err
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{Op: "NewAccount", Provider: provider.ProviderS3, Err: err}
	}
	return &Account{client: client, maxKeys: cfg.MaxKeys}, nil
}

// ListContainers returns every bucket the credentials can see.
func (a *Account) ListContainers(ctx context.Context) ([]provider.ContainerInfo, error) {
	var (
		containers []provider.ContainerInfo
		token      *string
	)

	for {
		out, err := a.client.ListBuckets(ctx, &s3.ListBucketsInput{ContinuationToken: token})
		if err != nil {
			return nil, wrapError("ListBuckets", "", "", err)
		}

		for _, b := range out.Buckets {
			containers = append(containers, provider.ContainerInfo{
				Name:         aws.ToString(b.Name),
				LastModified: aws.ToTime(b.CreationDate),
			})
		}

		if aws.ToString(out.ContinuationToken) == "" {
			break
		}
		token = out.ContinuationToken
	}

	return containers, nil
}

// Open returns a provider for the named bucket.
func (a *Account) Open(_ context.Context, container string) (provider.Provider, error) {
	if container == "" {
		return nil, &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	return newProvider(a.client, container, a.maxKeys), nil
}

// Type reports provider.ProviderS3.
func (a *Account) Type() provider.ProviderType {
	return provider.ProviderS3
}

func (a *Account) Close() error {
	return nil
}
