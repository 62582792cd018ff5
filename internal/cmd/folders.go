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

type foldersOptions struct {
	target targetFlags
	ids    string
	output string
}

func init() {
	rootCmd.AddCommand(newFoldersCmd())
}

func newFoldersCmd() *cobra.Command {
	opts := &foldersOptions{}
	cmd := &cobra.Command{
		Use:   "folders <uri>",
		Short: "Summarize the top-level folders of a container, or one folder",
		Long: `Summarize folders one level deep.

A container URI summarizes every top-level folder of the container. A folder
URI summarizes that folder only. Dataset presence is computed from one
recursive listing per folder.

Examples:
  lakemap folders s3://gold-lake/
  lakemap folders s3://gold-lake/sales/ --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFolders(cmd, opts, args[0])
		},
	}
	opts.target.register(cmd)
	cmd.Flags().StringVar(&opts.ids, "ids", "ephemeral", "Id mode (ephemeral|stable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", formatJSONL, "Output format (json|yaml|jsonl|table)")
	return cmd
}

func runFolders(cmd *cobra.Command, opts *foldersOptions, uri string) error {
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

	if loc.IsAccount() {
		return exitError(foundry.ExitInvalidArgument, "folders requires a container URI", fmt.Errorf("%s names no container", loc))
	}

	started := time.Now()
	s := summary.New(be, summary.Config{IDs: cfg.TreeBuild().IDs, Logger: observability.CLILogger})
	var folders []*summary.Folder
	if loc.Prefix == "" {
		folders, err = s.ListFolders(ctx, loc.Container)
	} else {
		var f *summary.Folder
		if f, err = s.SummarizeFolder(ctx, loc.Container, loc.Prefix); err == nil {
			folders = []*summary.Folder{f}
		}
	}
	if err != nil {
		observability.CLILogger.Error("Failed to summarize folders", zap.String("uri", loc.String()), zap.Error(err))
		return storageError("Failed to summarize folders", err)
	}

	if err := renderFolders(ctx, cmd.OutOrStdout(), format, string(loc.Provider), folders, time.Since(started)); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func renderFolders(ctx context.Context, w io.Writer, format, providerName string, folders []*summary.Folder, dur time.Duration) error {
	switch format {
	case formatJSON:
		return writeJSON(w, folders)
	case formatYAML:
		return writeYAML(w, folders)
	case formatTable:
		tbl := newTable(w, "NAME", "PATH", "FOLDERS", "ENTRIES", "FORMATS")
		for _, f := range folders {
			tbl.AddRow(f.Name, f.Path, strconv.Itoa(f.FolderCount), strconv.Itoa(f.EntryCount), formatList(f.DatasetFormats))
		}
		tbl.Print()
		return nil
	}

	jw := output.NewJSONLWriter(w, uuid.NewString(), providerName)
	defer func() { _ = jw.Close() }()
	for _, f := range folders {
		if err := jw.WriteFolder(ctx, f); err != nil {
			return err
		}
	}
	return jw.WriteSummary(ctx, &output.SummaryRecord{
		Folders:       int64(len(folders)),
		Duration:      dur,
		DurationHuman: formatDuration(dur),
	})
}
