package cmd

import (
	"context"
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lakemap/internal/config"
	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/pkg/backend"
)

// targetFlags are the connection flags shared by the browsing commands.
type targetFlags struct {
	region         string
	profile        string
	endpoint       string
	baseDir        string
	forcePathStyle bool
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.region, "region", "r", "", "AWS region")
	cmd.Flags().StringVarP(&f.profile, "profile", "p", "", "AWS profile")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "Custom S3 endpoint (MinIO, Wasabi, ...)")
	cmd.Flags().BoolVar(&f.forcePathStyle, "force-path-style", false, "Use path-style S3 addressing")
	cmd.Flags().StringVar(&f.baseDir, "base-dir", "", "Account root for file:// URIs; each subdirectory is a container")
}

// openLocation parses uri and opens a backend on its account.
func openLocation(ctx context.Context, uri string, tf *targetFlags, cfg *config.Config) (*Location, *backend.ProviderBackend, error) {
	loc, err := ParseLocation(uri, tf.baseDir)
	if err != nil {
		observability.CLILogger.Error("Invalid URI", zap.String("uri", uri), zap.Error(err))
		return nil, nil, exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	target := backend.Target{
		Provider:       loc.Provider,
		Region:         tf.region,
		Endpoint:       tf.endpoint,
		Profile:        tf.profile,
		ForcePathStyle: tf.forcePathStyle,
		BaseDir:        loc.BaseDir,
	}
	be, err := backend.Open(ctx, target, backend.Config{
		RateLimit: cfg.Backend.RateLimit,
		MaxKeys:   cfg.Backend.MaxKeys,
		Logger:    observability.CLILogger,
	})
	if err != nil {
		observability.CLILogger.Error("Failed to open storage", zap.String("uri", loc.String()), zap.Error(err))
		return nil, nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	return loc, be, nil
}

// storageError maps a listing failure to an exit error.
func storageError(message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return exitError(foundry.ExitExternalServiceUnavailable, message+" (timed out)", err)
	}
	if backend.IsCanceled(err) {
		return exitError(foundry.ExitSignalInt, message+" (canceled)", err)
	}
	return exitError(foundry.ExitExternalServiceUnavailable, message, err)
}
