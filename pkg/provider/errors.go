package provider

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("object not found")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrThrottled           = errors.New("request throttled")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// ProviderError attaches the failing operation and location to one of the
// sentinel errors above (or to a raw SDK error that maps to none of them).
type ProviderError struct {
	Op       string
	Provider ProviderType

	// Bucket is the container name. Empty for account-level operations.
	Bucket string
	Key    string
	Err    error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool       { return errors.Is(err, ErrNotFound) }
func IsBucketNotFound(err error) bool { return errors.Is(err, ErrBucketNotFound) }

// IsAuth reports a credential or permission failure. Tree discovery aborts
// the whole request on these.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrInvalidCredentials)
}

// IsMissing reports that the container or key is absent. Listings treat it
// as empty.
func IsMissing(err error) bool {
	return IsNotFound(err) || IsBucketNotFound(err)
}

// IsRetryable reports throttling or an unavailable service.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrProviderUnavailable)
}
