package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/pkg/output"
	"github.com/3leaps/lakemap/pkg/summary"
)

type containersOptions struct {
	target     targetFlags
	containers []string
	ids        string
	output     string
}

var idsFlagKeys = map[string]string{"ids": "tree.ids"}

func init() {
	rootCmd.AddCommand(newContainersCmd())
}

func newContainersCmd() *cobra.Command {
	opts := &containersOptions{}
	cmd := &cobra.Command{
		Use:   "containers <account-uri>",
		Short: "List containers with their tier and root-level summary",
		Long: `List the containers of an account. Each container is tagged with its
medallion tier (ingress, bronze, silver, gold) when its name carries exactly
one tier keyword, and summarized one level deep.

Examples:
  lakemap containers s3://
  lakemap containers s3:// --containers gold-lake,bronze-raw --output table
  lakemap containers file:///srv/lake`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainers(cmd, opts, args[0])
		},
	}
	opts.target.register(cmd)
	cmd.Flags().StringSliceVar(&opts.containers, "containers", nil, "Containers to include (comma separated)")
	cmd.Flags().StringVar(&opts.ids, "ids", "ephemeral", "Id mode (ephemeral|stable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", formatJSONL, "Output format (json|yaml|jsonl|table)")
	return cmd
}

func runContainers(cmd *cobra.Command, opts *containersOptions, uri string) error {
	format, err := parseOutputFormat(opts.output)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", err)
	}
	cfg, err := loadConfig(cmd, idsFlagKeys)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	loc, be, err := openLocation(ctx, uri, &opts.target, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = be.Close() }()

	if !loc.IsAccount() {
		return exitError(foundry.ExitInvalidArgument, "containers requires an account URI", fmt.Errorf("%s names a container; use s3:// or file:///base", loc))
	}

	started := time.Now()
	s := summary.New(be, summary.Config{IDs: cfg.TreeBuild().IDs, Logger: observability.CLILogger})
	containers, err := s.ListContainers(ctx, splitList(opts.containers))
	if err != nil {
		observability.CLILogger.Error("Failed to list containers", zap.String("uri", loc.String()), zap.Error(err))
		return storageError("Failed to list containers", err)
	}

	if err := renderContainers(ctx, cmd.OutOrStdout(), format, string(loc.Provider), containers, time.Since(started)); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func renderContainers(ctx context.Context, w io.Writer, format, providerName string, containers []*summary.Container, dur time.Duration) error {
	switch format {
	case formatJSON:
		return writeJSON(w, containers)
	case formatYAML:
		return writeYAML(w, containers)
	case formatTable:
		tbl := newTable(w, "NAME", "TYPE", "FOLDERS", "ENTRIES", "FORMATS", "LAST MODIFIED")
		for _, c := range containers {
			typ := string(c.Type)
			if typ == "" {
				typ = dimStyle.Render("-")
			}
			tbl.AddRow(c.Name, typ, strconv.Itoa(c.FolderCount), strconv.Itoa(c.EntryCount), formatList(c.DatasetFormats), formatTime(c.LastModified))
		}
		tbl.Print()
		return nil
	}

	jw := output.NewJSONLWriter(w, uuid.NewString(), providerName)
	defer func() { _ = jw.Close() }()
	sum := &output.SummaryRecord{Containers: int64(len(containers)), Duration: dur, DurationHuman: formatDuration(dur)}
	for _, c := range containers {
		if err := jw.WriteContainer(ctx, c); err != nil {
			return err
		}
	}
	return jw.WriteSummary(ctx, sum)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return dimStyle.Render("-")
	}
	return t.UTC().Format(time.RFC3339)
}
