package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/lakemap/pkg/provider"
)

// Account treats each top-level directory of BaseDir as a container.
type Account struct {
	baseDir string
}

var _ provider.Account = (*Account)(nil)

// NewAccount creates an account rooted at cfg.BaseDir.
func NewAccount(cfg Config) (*Account, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Account{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// ListContainers returns the non-hidden subdirectories of the base directory.
func (a *Account) ListContainers(ctx context.Context) ([]provider.ContainerInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(a.baseDir)
	if err != nil {
		wrapped := &provider.ProviderError{Op: "ListContainers", Provider: provider.ProviderFile, Err: err}
		switch {
		case os.IsNotExist(err):
			wrapped.Err = provider.ErrNotFound
		case os.IsPermission(err):
			wrapped.Err = provider.ErrAccessDenied
		}
		return nil, wrapped
	}

	var containers []provider.ContainerInfo
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info := provider.ContainerInfo{Name: e.Name()}
		if st, err := e.Info(); err == nil {
			info.LastModified = st.ModTime()
		}
		containers = append(containers, info)
	}
	return containers, nil
}

// Open returns a provider rooted at the container directory.
func (a *Account) Open(_ context.Context, container string) (provider.Provider, error) {
	if container == "" || strings.ContainsAny(container, `/\`) || container == "." || container == ".." {
		return nil, &provider.ProviderError{Op: "Open", Provider: provider.ProviderFile, Bucket: container, Err: provider.ErrBucketNotFound}
	}
	return &Provider{baseDir: filepath.Join(a.baseDir, container), container: container}, nil
}

func (a *Account) Type() provider.ProviderType { return provider.ProviderFile }

func (a *Account) Close() error { return nil }
