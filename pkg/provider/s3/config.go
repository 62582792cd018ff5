// Package s3 implements the provider interfaces for AWS S3 and S3-compatible storage.
//
// An Account enumerates buckets as containers; a Provider is bound to one bucket.
package s3

// Config configures an S3 account or bucket provider.
//
// Credentials follow the AWS SDK v2 default chain unless AccessKeyID and
// SecretAccessKey are both set. When Region is empty and no Endpoint is set
// the region falls back to us-east-1; S3-compatible endpoints get no default.
type Config struct {
	// Bucket is required by New and ignored by NewAccount.
	Bucket string

	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores
	// (MinIO, Wasabi, DigitalOcean Spaces). Leave empty for AWS S3.
	Endpoint string

	// Profile is the shared-config profile name.
	Profile string

	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the URL path instead of the host.
	// Most S3-compatible stores need it.
	ForcePathStyle bool

	// MaxKeys is the default page size for listings.
	// Zero uses DefaultMaxKeys. Values over MaxAllowedKeys are clamped.
	MaxKeys int
}

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks the configuration for a bucket-scoped provider.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	return c.validateCredentials()
}

// validateCredentials checks that explicit credentials come in pairs.
func (c *Config) validateCredentials() error {
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
