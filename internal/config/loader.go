package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/tree"
)

const (
	// ConfigName is the config file base name, searched as lakemap.yaml.
	ConfigName = "lakemap"

	// EnvPrefix prefixes every environment variable lakemap reads.
	EnvPrefix = "LAKEMAP"

	// ConfigFileEnv names an explicit config file, skipping the search.
	ConfigFileEnv = EnvPrefix + "_CONFIG"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envSpec maps one environment variable to a config path.
type envSpec struct {
	Name string
	Path string
}

// Load builds the configuration and makes it the one GetConfig returns.
// Each override map is nested like the config file, or uses dotted keys;
// later maps win.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile is Load with an explicit config file. An empty path falls back
// to LAKEMAP_CONFIG and then to the search path.
func LoadFile(_ context.Context, path string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		flat := make(map[string]any)
		flatten("", o, flat)
		for k, val := range flat {
			v.Set(k, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	v.SetDefault("workers", 4)

	def := tree.DefaultConfig()
	v.SetDefault("tree.depth", def.Depth)
	v.SetDefault("tree.max_folders", def.MaxFolders)
	v.SetDefault("tree.parallel", 4)
	v.SetDefault("tree.timeout", "60s")
	v.SetDefault("tree.strategy", string(def.Strategy))
	v.SetDefault("tree.ids", string(def.IDs))

	v.SetDefault("backend.rate_limit", 0)
	v.SetDefault("backend.max_keys", 1000)

	v.SetDefault("session.ttl", "30m")
	v.SetDefault("session.cleanup_interval", "1m")
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Tree.Depth < 1 {
		errs = append(errs, fmt.Errorf("tree.depth must be at least 1, got %d", c.Tree.Depth))
	}
	if _, err := tree.ParseStrategy(c.Tree.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("tree.strategy: %w", err))
	}
	if _, err := tree.ParseIDMode(c.Tree.IDs); err != nil {
		errs = append(errs, fmt.Errorf("tree.ids: %w", err))
	}
	if c.Backend.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("backend.rate_limit must not be negative"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive"))
	}

	seen := make(map[string]struct{}, len(c.Connections))
	for i, conn := range c.Connections {
		if strings.TrimSpace(conn.Name) == "" {
			errs = append(errs, fmt.Errorf("connections[%d]: name is required", i))
			continue
		}
		if _, dup := seen[conn.Name]; dup {
			errs = append(errs, fmt.Errorf("connections[%d]: duplicate name %q", i, conn.Name))
		}
		seen[conn.Name] = struct{}{}
		if _, err := backend.ParseProviderType(string(conn.Target.Provider)); err != nil {
			errs = append(errs, fmt.Errorf("connections[%d]: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// TreeBuild returns the tree builder configuration described by c.
func (c *Config) TreeBuild() tree.Config {
	strategy, _ := tree.ParseStrategy(c.Tree.Strategy)
	ids, _ := tree.ParseIDMode(c.Tree.IDs)
	return tree.Config{
		Depth:      c.Tree.Depth,
		Parallel:   c.Tree.Parallel,
		MaxFolders: c.Tree.MaxFolders,
		IDs:        ids,
		Strategy:   strategy,
	}
}

func readConfigFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range getUserConfigPaths() {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// getUserConfigPaths lists per-user config directories, most specific first.
func getUserConfigPaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigName))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		p := filepath.Join(dir, ConfigName)
		if len(paths) == 0 || paths[0] != p {
			paths = append(paths, p)
		}
	}
	return paths
}

func getEnvSpecs() []envSpec {
	env := func(suffix, path string) envSpec {
		return envSpec{Name: EnvPrefix + "_" + suffix, Path: path}
	}
	return []envSpec{
		env("HOST", "server.host"),
		env("PORT", "server.port"),
		env("READ_TIMEOUT", "server.read_timeout"),
		env("WRITE_TIMEOUT", "server.write_timeout"),
		env("IDLE_TIMEOUT", "server.idle_timeout"),
		env("SHUTDOWN_TIMEOUT", "server.shutdown_timeout"),
		env("LOG_LEVEL", "logging.level"),
		env("LOG_PROFILE", "logging.profile"),
		env("METRICS_ENABLED", "metrics.enabled"),
		env("METRICS_PORT", "metrics.port"),
		env("HEALTH_ENABLED", "health.enabled"),
		env("DEBUG", "debug.enabled"),
		env("PPROF_ENABLED", "debug.pprof_enabled"),
		env("WORKERS", "workers"),
		env("TREE_DEPTH", "tree.depth"),
		env("TREE_MAX_FOLDERS", "tree.max_folders"),
		env("TREE_PARALLEL", "tree.parallel"),
		env("TREE_TIMEOUT", "tree.timeout"),
		env("TREE_STRATEGY", "tree.strategy"),
		env("TREE_IDS", "tree.ids"),
		env("RATE_LIMIT", "backend.rate_limit"),
		env("MAX_KEYS", "backend.max_keys"),
		env("SESSION_TTL", "session.ttl"),
		env("SESSION_CLEANUP_INTERVAL", "session.cleanup_interval"),
	}
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, val := range in {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = val
	}
}
