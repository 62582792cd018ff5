package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/3leaps/lakemap/internal/errors"
	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/provider"
)

var (
	doctorProvider string
	doctorBaseDir  string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  lakemap doctor                                    # Environment and config checks
  lakemap doctor --provider s3                      # Plus AWS credential checks
  lakemap doctor --provider file --base-dir /srv/lake`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3|file)")
	doctorCmd.Flags().StringVar(&doctorBaseDir, "base-dir", "", "Account root to check with --provider file")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	log := observability.CLILogger
	log.Info("=== " + binaryName + " doctor ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	var providerType provider.ProviderType
	if doctorProvider != "" {
		var err error
		if providerType, err = backend.ParseProviderType(doctorProvider); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --provider value", err)
		}
	}

	allChecks := true
	checkNum := 1
	totalChecks := 4
	switch providerType {
	case provider.ProviderS3:
		totalChecks = 6
	case provider.ProviderFile:
		totalChecks = 5
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		log.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Configuration
	if cfg, err := loadConfig(cmd, nil); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ %v", checkNum, totalChecks, err))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ %d configured connection(s)", checkNum, totalChecks, len(cfg.Connections)),
			zap.Int("connections", len(cfg.Connections)),
			zap.String("tree_strategy", cfg.Tree.Strategy))
	}
	checkNum++

	// Check 3: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		return exitError(foundry.ExitFileNotFound, "Cannot find config directory",
			errwrap.WrapInternal(cmd.Context(), err, "Cannot find config directory"))
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
		zap.String("config_dir", configDir))
	checkNum++

	// Check 4: Environment
	log.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	switch providerType {
	case provider.ProviderS3:
		allChecks = runS3Checks(cmd.Context(), checkNum, totalChecks) && allChecks
	case provider.ProviderFile:
		allChecks = runFileChecks(cmd.Context(), checkNum, totalChecks, doctorBaseDir) && allChecks
	}

	log.Info("")
	if allChecks {
		log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", binaryName))
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
	return nil
}

// runS3Checks runs S3-specific diagnostic checks.
func runS3Checks(ctx context.Context, checkNum, totalChecks int) bool {
	log := observability.CLILogger
	log.Info("")
	log.Info("S3 Provider Checks:")

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	log.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source))
	checkNum++

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking credential source... ✅ %s", checkNum, totalChecks, source),
		zap.String("credential_source", source))
	return true
}

// runFileChecks opens baseDir as a file account and counts its containers.
func runFileChecks(ctx context.Context, checkNum, totalChecks int, baseDir string) bool {
	log := observability.CLILogger
	log.Info("")
	log.Info("File Provider Checks:")

	if baseDir == "" {
		log.Error(fmt.Sprintf("[%d/%d] Checking base directory... ❌ --base-dir is required", checkNum, totalChecks))
		return false
	}

	be, err := backend.Open(ctx, backend.Target{Provider: provider.ProviderFile, BaseDir: baseDir}, backend.Config{Logger: log})
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking base directory... ❌ Cannot open %s", checkNum, totalChecks, baseDir),
			zap.Error(err))
		return false
	}
	defer func() { _ = be.Close() }()

	containers, err := be.ListContainers(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking base directory... ❌ Cannot list %s", checkNum, totalChecks, baseDir),
			zap.Error(err))
		return false
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking base directory... ✅ %d container(s)", checkNum, totalChecks, len(containers)),
		zap.String("base_dir", baseDir),
		zap.Int("containers", len(containers)))
	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure AWS credentials:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Run 'aws configure' to set up a profile, or")
	log.Info("  3. Use IAM role when running on AWS infrastructure")
	log.Info("")
	log.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also pass:")
	log.Info("  --endpoint and --force-path-style")
	log.Info("")
}
