package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lakemap/pkg/provider"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		baseDir string
		want    *Location
	}{
		{
			name: "s3 account",
			uri:  "s3://",
			want: &Location{Provider: provider.ProviderS3},
		},
		{
			name: "bucket without slash",
			uri:  "s3://my-bucket",
			want: &Location{Provider: provider.ProviderS3, Container: "my-bucket"},
		},
		{
			name: "bucket with trailing slash",
			uri:  "s3://my-bucket/",
			want: &Location{Provider: provider.ProviderS3, Container: "my-bucket"},
		},
		{
			name: "bucket with prefix",
			uri:  "s3://my-bucket/sales/2024/",
			want: &Location{Provider: provider.ProviderS3, Container: "my-bucket", Prefix: "sales/2024/"},
		},
		{
			name: "prefix is normalized",
			uri:  "s3://my-bucket//sales//2024",
			want: &Location{Provider: provider.ProviderS3, Container: "my-bucket", Prefix: "sales/2024/"},
		},
		{
			name: "uppercase scheme",
			uri:  "S3://my-bucket/a/",
			want: &Location{Provider: provider.ProviderS3, Container: "my-bucket", Prefix: "a/"},
		},
		{
			name: "file account without base dir",
			uri:  "file:///srv/lake/",
			want: &Location{Provider: provider.ProviderFile, BaseDir: "/srv/lake"},
		},
		{
			name:    "file base dir itself",
			uri:     "file:///srv/lake",
			baseDir: "/srv/lake/",
			want:    &Location{Provider: provider.ProviderFile, BaseDir: "/srv/lake"},
		},
		{
			name:    "file container",
			uri:     "file:///srv/lake/gold-lake",
			baseDir: "/srv/lake",
			want:    &Location{Provider: provider.ProviderFile, BaseDir: "/srv/lake", Container: "gold-lake"},
		},
		{
			name:    "file folder",
			uri:     "file:///srv/lake/gold-lake/sales/orders/",
			baseDir: "/srv/lake",
			want:    &Location{Provider: provider.ProviderFile, BaseDir: "/srv/lake", Container: "gold-lake", Prefix: "sales/orders/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.uri, tt.baseDir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLocation_Errors(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		baseDir string
		wantErr error
	}{
		{"empty", "", "", ErrInvalidURI},
		{"no scheme", "my-bucket/path", "", ErrInvalidURI},
		{"gcs", "gs://bucket/", "", ErrUnsupportedProvider},
		{"azure", "abfs://container/", "", ErrUnsupportedProvider},
		{"missing bucket", "s3:///prefix/", "", ErrInvalidURI},
		{"glob star", "s3://bucket/data/*.parquet", "", ErrPatternURI},
		{"glob doublestar", "s3://bucket/**/_delta_log/", "", ErrPatternURI},
		{"glob question mark", "s3://bucket/data?/", "", ErrPatternURI},
		{"relative file path", "file://relative/dir", "", ErrInvalidURI},
		{"outside base dir", "file:///srv/other/x", "/srv/lake", ErrOutsideBaseDir},
		{"parent of base dir", "file:///srv", "/srv/lake", ErrOutsideBaseDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLocation(tt.uri, tt.baseDir)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLocation_String(t *testing.T) {
	tests := []struct {
		loc  Location
		want string
	}{
		{Location{Provider: provider.ProviderS3}, "s3://"},
		{Location{Provider: provider.ProviderS3, Container: "b"}, "s3://b/"},
		{Location{Provider: provider.ProviderS3, Container: "b", Prefix: "x/y/"}, "s3://b/x/y/"},
		{Location{Provider: provider.ProviderFile, BaseDir: "/srv/lake"}, "file:///srv/lake"},
		{Location{Provider: provider.ProviderFile, BaseDir: "/srv/lake", Container: "gold", Prefix: "a/"}, "file:///srv/lake/gold/a/"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.String())
			assert.Equal(t, tt.loc.Container == "", tt.loc.IsAccount())
		})
	}
}

func TestParseLocation_RoundTrip(t *testing.T) {
	for _, uri := range []string{"s3://", "s3://b/", "s3://b/x/y/"} {
		loc, err := ParseLocation(uri, "")
		require.NoError(t, err)
		assert.Equal(t, uri, loc.String())
	}
}
