package s3

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/lakemap/pkg/provider"
)

// api is the subset of the S3 client lakemap calls.
// *s3.Client satisfies it; tests substitute a fake.
type api interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// Provider implements provider.Provider for a single S3 bucket.
type Provider struct {
	client  api
	bucket  string
	maxKeys int
}

var (
	_ provider.Provider        = (*Provider)(nil)
	_ provider.DelimiterLister = (*Provider)(nil)
)

// New creates a provider bound to cfg.Bucket.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Bucket:   cfg.Bucket,
			Err:      err,
		}
	}

	return newProvider(client, cfg.Bucket, cfg.MaxKeys), nil
}

func newProvider(client api, bucket string, maxKeys int) *Provider {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Provider{client: client, bucket: bucket, maxKeys: maxKeys}
}

// newClient builds an S3 client honoring endpoint and path-style settings.
func newClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Let the SDK resolve region from env/profile unless set explicitly.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// List returns a page of objects with the given prefix.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		MaxKeys: aws.Int32(int32(clampMaxKeys(opts.MaxKeys, p.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := p.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	return &provider.ListResult{
		Objects:           summarize(output.Contents),
		IsTruncated:       aws.ToBool(output.IsTruncated),
		ContinuationToken: aws.ToString(output.NextContinuationToken),
	}, nil
}

// ListWithDelimiter returns objects directly under opts.Prefix and the
// immediate child prefixes, using ListObjectsV2 with a delimiter.
func (p *Provider) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	delimiter := opts.Delimiter
	if delimiter == "" {
		delimiter = "/"
	}

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Delimiter: aws.String(delimiter),
		MaxKeys:   aws.Int32(int32(clampMaxKeys(opts.MaxKeys, p.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := p.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, p.wrapError("ListWithDelimiter", opts.Prefix, err)
	}

	prefixes := make([]string, 0, len(output.CommonPrefixes))
	for _, cp := range output.CommonPrefixes {
		if v := aws.ToString(cp.Prefix); v != "" {
			prefixes = append(prefixes, v)
		}
	}

	return &provider.ListWithDelimiterResult{
		Objects:           summarize(output.Contents),
		CommonPrefixes:    prefixes,
		IsTruncated:       aws.ToBool(output.IsTruncated),
		ContinuationToken: aws.ToString(output.NextContinuationToken),
	}, nil
}

// Close is a no-op; the S3 client holds no resources needing release.
func (p *Provider) Close() error {
	return nil
}

func summarize(contents []types.Object) []provider.ObjectSummary {
	objects := make([]provider.ObjectSummary, 0, len(contents))
	for _, obj := range contents {
		objects = append(objects, provider.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return objects
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, key string, err error) error {
	return wrapError(op, p.bucket, key, err)
}

func wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = provider.ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel := sentinelForCode(apiErr.ErrorCode()); sentinel != nil {
			wrapped.Err = sentinel
		}
		return wrapped
	}

	// Errors without a typed API code (transport failures, wrapped responses)
	// still carry the code or status in their message.
	msg := err.Error()
	for _, m := range messageSentinels {
		for _, needle := range m.needles {
			if strings.Contains(msg, needle) {
				wrapped.Err = m.err
				return wrapped
			}
		}
	}
	return wrapped
}

// messageSentinels is checked in order; bucket misses come before the
// generic not-found statuses.
var messageSentinels = []struct {
	needles []string
	err     error
}{
	{[]string{"NoSuchBucket"}, provider.ErrBucketNotFound},
	{[]string{"NoSuchKey", "NotFound", "404"}, provider.ErrNotFound},
	{[]string{"AccessDenied", "Forbidden", "403"}, provider.ErrAccessDenied},
	{[]string{"InvalidAccessKeyId", "SignatureDoesNotMatch"}, provider.ErrInvalidCredentials},
	{[]string{"SlowDown", "Throttling", "429"}, provider.ErrThrottled},
	{[]string{"ServiceUnavailable", "503"}, provider.ErrProviderUnavailable},
}

func sentinelForCode(code string) error {
	switch code {
	case "NoSuchKey", "NotFound":
		return provider.ErrNotFound
	case "NoSuchBucket":
		return provider.ErrBucketNotFound
	case "AccessDenied", "Forbidden", "AllAccessDisabled":
		return provider.ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return provider.ErrInvalidCredentials
	case "SlowDown", "Throttling", "RequestLimitExceeded":
		return provider.ErrThrottled
	case "ServiceUnavailable", "InternalError":
		return provider.ErrProviderUnavailable
	}
	return nil
}

// clampMaxKeys applies defaults and limits to maxKeys values.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion applies the us-east-1 fallback after SDK resolution.
// sdkRegion already reflects an explicit cfgRegion, env, or profile.
// Custom endpoints get no default.
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
