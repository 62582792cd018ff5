package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/lakemap/internal/config"
	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/backend/backendtest"
	"github.com/3leaps/lakemap/pkg/provider"
	"github.com/3leaps/lakemap/pkg/session"
)

func TestSignalHealthChecker(t *testing.T) {
	checker := signalHealthChecker{}

	t.Run("always returns nil", func(t *testing.T) {
		err := checker.CheckHealth(context.Background())
		assert.NoError(t, err)
	})
}

func TestTelemetryHealthChecker(t *testing.T) {
	checker := telemetryHealthChecker{}
	t.Cleanup(observability.ResetMetrics)

	t.Run("returns error when telemetry not initialized", func(t *testing.T) {
		observability.ResetMetrics()

		err := checker.CheckHealth(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry system not initialized")
	})

	t.Run("healthy after init", func(t *testing.T) {
		observability.InitMetrics()
		assert.NoError(t, checker.CheckHealth(context.Background()))
	})
}

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		binaryName string
		envPrefix  string
		configName string
		wantErr    bool
		errContain string
	}{
		{
			name:       "all fields valid",
			binaryName: "lakemap",
			envPrefix:  "LAKEMAP",
			configName: "lakemap",
			wantErr:    false,
		},
		{
			name:       "missing binary name",
			binaryName: "",
			envPrefix:  "LAKEMAP",
			configName: "lakemap",
			wantErr:    true,
			errContain: "missing binary name",
		},
		{
			name:       "missing env prefix",
			binaryName: "lakemap",
			envPrefix:  "",
			configName: "lakemap",
			wantErr:    true,
			errContain: "missing env prefix",
		},
		{
			name:       "missing config name",
			binaryName: "lakemap",
			envPrefix:  "LAKEMAP",
			configName: "",
			wantErr:    true,
			errContain: "missing config name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := identityHealthChecker{
				binaryName: tt.binaryName,
				envPrefix:  tt.envPrefix,
				configName: tt.configName,
			}

			err := checker.CheckHealth(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContain)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpenPinnedConnections(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(0, nil)
	t.Cleanup(func() { _ = store.Close() })

	var opened []backend.Target
	open := func(_ context.Context, tgt backend.Target) (backend.StorageBackend, error) {
		opened = append(opened, tgt)
		return backendtest.New().Add("gold-lake", "a.parquet"), nil
	}

	conns := []config.ConnectionConfig{
		{Name: "local", Target: backend.Target{Provider: provider.ProviderFile, BaseDir: "/srv/lake"}, ContainerFilter: []string{"gold-lake, bronze-raw"}},
		{Name: "prod", Target: backend.Target{Region: "eu-west-1"}},
	}
	require.NoError(t, openPinnedConnections(ctx, store, conns, open, zap.NewNop()))
	require.Len(t, opened, 2)
	assert.Equal(t, "/srv/lake", opened[0].BaseDir)

	// Zero TTL would expire ordinary sessions immediately.
	local, err := store.Get(ctx, "local")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.True(t, local.Pinned)
	assert.Equal(t, "local", local.Name)
	assert.Equal(t, []string{"gold-lake", "bronze-raw"}, local.ContainerFilter)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOpenPinnedConnections_OpenFailure(t *testing.T) {
	store := session.NewMemoryStore(0, nil)
	t.Cleanup(func() { _ = store.Close() })

	open := func(context.Context, backend.Target) (backend.StorageBackend, error) {
		return nil, errors.New("no credentials")
	}
	err := openPinnedConnections(context.Background(), store,
		[]config.ConnectionConfig{{Name: "prod"}}, open, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `connection "prod"`)
	assert.Contains(t, err.Error(), "no credentials")
}
