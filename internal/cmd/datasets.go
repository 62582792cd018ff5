package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/pkg/output"
	"github.com/3leaps/lakemap/pkg/summary"
)

type datasetsOptions struct {
	target     targetFlags
	containers []string
	ids        string
	output     string
}

func init() {
	rootCmd.AddCommand(newDatasetsCmd())
}

func newDatasetsCmd() *cobra.Command {
	opts := &datasetsOptions{}
	cmd := &cobra.Command{
		Use:   "datasets <uri>",
		Short: "List parquet files and delta logs below a location",
		Long: `List dataset files found by a recursive listing.

Parquet files are reported individually. A delta table is reported once per
_delta_log directory, named after the table folder.

Examples:
  lakemap datasets s3:// --containers gold-lake
  lakemap datasets s3://gold-lake/sales/ --output table`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasets(cmd, opts, args[0])
		},
	}
	opts.target.register(cmd)
	cmd.Flags().StringSliceVar(&opts.containers, "containers", nil, "Containers to search for account URIs (comma separated)")
	cmd.Flags().StringVar(&opts.ids, "ids", "ephemeral", "Id mode (ephemeral|stable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", formatJSONL, "Output format (json|yaml|jsonl|table)")
	return cmd
}

func runDatasets(cmd *cobra.Command, opts *datasetsOptions, uri string) error {
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

	scope := summary.Scope{Container: loc.Container, Folder: loc.Prefix}
	if filter := splitList(opts.containers); len(filter) > 0 {
		if !loc.IsAccount() {
			return exitError(foundry.ExitInvalidArgument, "--containers requires an account URI", fmt.Errorf("%s names a container", loc))
		}
		scope.Filter = filter
	}

	started := time.Now()
	s := summary.New(be, summary.Config{IDs: cfg.TreeBuild().IDs, Logger: observability.CLILogger})
	datasets, err := s.ListDatasets(ctx, scope)
	if err != nil {
		observability.CLILogger.Error("Failed to list datasets", zap.String("uri", loc.String()), zap.Error(err))
		return storageError("Failed to list datasets", err)
	}

	if err := renderDatasets(ctx, cmd.OutOrStdout(), format, string(loc.Provider), datasets, time.Since(started)); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func renderDatasets(ctx context.Context, w io.Writer, format, providerName string, datasets []*summary.Dataset, dur time.Duration) error {
	switch format {
	case formatJSON:
		return writeJSON(w, datasets)
	case formatYAML:
		return writeYAML(w, datasets)
	case formatTable:
		tbl := newTable(w, "NAME", "FORMAT", "PATH", "SIZE", "LAST MODIFIED")
		for _, d := range datasets {
			tbl.AddRow(d.Name, string(d.Format), d.Path, humanize.IBytes(uint64(d.Size)), formatTime(d.LastModified))
		}
		tbl.Print()
		return nil
	}

	jw := output.NewJSONLWriter(w, uuid.NewString(), providerName)
	defer func() { _ = jw.Close() }()
	for _, d := range datasets {
		if err := jw.WriteDataset(ctx, d); err != nil {
			return err
		}
	}
	return jw.WriteSummary(ctx, &output.SummaryRecord{
		Datasets:      int64(len(datasets)),
		Duration:      dur,
		DurationHuman: formatDuration(dur),
	})
}
