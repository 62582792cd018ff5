package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ProviderError
		expected string
	}{
		{
			name:     "with key",
			err:      &ProviderError{Op: "List", Provider: ProviderS3, Bucket: "lake", Key: "a/", Err: ErrNotFound},
			expected: "s3 List: lake/a/: object not found",
		},
		{
			name:     "without key",
			err:      &ProviderError{Op: "ListWithDelimiter", Provider: ProviderFile, Bucket: "lake", Err: ErrAccessDenied},
			expected: "file ListWithDelimiter: lake: access denied",
		},
		{
			name:     "without bucket",
			err:      &ProviderError{Op: "ListBuckets", Provider: ProviderS3, Err: errors.New("boom")},
			expected: "s3 ListBuckets: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	wrap := func(err error) error { return &ProviderError{Op: "List", Provider: ProviderS3, Err: err} }

	assert.True(t, IsNotFound(wrap(ErrNotFound)))
	assert.True(t, IsBucketNotFound(wrap(ErrBucketNotFound)))
	assert.True(t, IsRetryable(wrap(ErrThrottled)))
	assert.True(t, IsRetryable(wrap(ErrProviderUnavailable)))
	assert.False(t, IsRetryable(wrap(ErrAccessDenied)))

	assert.True(t, IsAuth(wrap(ErrAccessDenied)))
	assert.True(t, IsAuth(wrap(ErrInvalidCredentials)))
	assert.False(t, IsAuth(wrap(ErrThrottled)))

	assert.True(t, IsMissing(wrap(ErrNotFound)))
	assert.True(t, IsMissing(wrap(ErrBucketNotFound)))
	assert.False(t, IsMissing(wrap(ErrAccessDenied)))
	assert.False(t, IsMissing(errors.New("other")))
}

func TestProviderType_String(t *testing.T) {
	assert.Equal(t, "s3", ProviderS3.String())
	assert.Equal(t, "file", ProviderFile.String())
}
