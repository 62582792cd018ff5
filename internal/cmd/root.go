// Package cmd implements the lakemap command line.
package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/3leaps/lakemap/internal/config"
	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/internal/server/handlers"
)

const binaryName = "lakemap"

var (
	cfgFile string
	verbose bool
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: "Discover storage trees and classify datasets",
	Long: `lakemap walks object storage (S3 or a local directory tree), classifies
containers into medallion tiers, and finds parquet and delta datasets.

Examples:
  lakemap containers s3://
  lakemap tree s3://gold-lake/ --depth 3 --output table
  lakemap datasets file:///srv/lake/gold-lake/sales/ --base-dir /srv/lake
  lakemap serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitCLILogger(binaryName, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./lakemap.yaml, then the user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}

// SetVersionInfo records build metadata for the version command and the
// server's version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode returns the exit code for an error returned by Execute.
// Errors that carry no code exit with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// loadConfig loads configuration with the flags the user actually set
// layered on top. flagKeys maps flag names to config keys.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string) (*config.Config, error) {
	cfg, err := config.LoadFile(cmd.Context(), cfgFile, flagOverrides(cmd.Flags(), flagKeys))
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	return cfg, nil
}

// flagOverrides returns dotted config keys for every changed flag in
// flagKeys.
func flagOverrides(flags *pflag.FlagSet, flagKeys map[string]string) map[string]any {
	out := make(map[string]any)
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		switch f.Value.Type() {
		case "stringSlice", "stringArray":
			out[key], _ = flags.GetStringSlice(name)
		default:
			out[key] = f.Value.String()
		}
	}
	return out
}

// splitList splits comma separated values and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
