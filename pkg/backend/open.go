package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/3leaps/lakemap/pkg/provider"
	"github.com/3leaps/lakemap/pkg/provider/file"
	"github.com/3leaps/lakemap/pkg/provider/s3"
)

// Target describes the account a backend should be opened on.
type Target struct {
	// Provider is "s3" or "file". Empty means s3.
	Provider provider.ProviderType `json:"provider" yaml:"provider" mapstructure:"provider"`

	Region         string `json:"region,omitempty" yaml:"region,omitempty" mapstructure:"region"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Profile        string `json:"profile,omitempty" yaml:"profile,omitempty" mapstructure:"profile"`
	ForcePathStyle bool   `json:"forcePathStyle,omitempty" yaml:"forcePathStyle,omitempty" mapstructure:"force_path_style"`

	// BaseDir is the account root for the file provider. Each subdirectory
	// is a container.
	BaseDir string `json:"baseDir,omitempty" yaml:"baseDir,omitempty" mapstructure:"base_dir"`
}

// ParseProviderType validates a provider name.
func ParseProviderType(s string) (provider.ProviderType, error) {
	switch provider.ProviderType(strings.ToLower(strings.TrimSpace(s))) {
	case "", provider.ProviderS3:
		return provider.ProviderS3, nil
	case provider.ProviderFile:
		return provider.ProviderFile, nil
	}
	return "", fmt.Errorf("unsupported provider %q (expected s3 or file)", s)
}

// OpenAccount creates the provider account described by t.
func OpenAccount(ctx context.Context, t Target, maxKeys int) (provider.Account, error) {
	typ, err := ParseProviderType(string(t.Provider))
	if err != nil {
		return nil, err
	}

	if typ == provider.ProviderFile {
		acct, err := file.NewAccount(file.Config{BaseDir: t.BaseDir})
		if err != nil {
			return nil, err
		}
		return acct, nil
	}

	acct, err := s3.NewAccount(ctx, s3.Config{
		Region:         t.Region,
		Endpoint:       t.Endpoint,
		Profile:        t.Profile,
		ForcePathStyle: t.ForcePathStyle || t.Endpoint != "",
		MaxKeys:        maxKeys,
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Open creates a ProviderBackend for t.
func Open(ctx context.Context, t Target, cfg Config) (*ProviderBackend, error) {
	account, err := OpenAccount(ctx, t, cfg.MaxKeys)
	if err != nil {
		return nil, err
	}
	return New(account, cfg), nil
}
