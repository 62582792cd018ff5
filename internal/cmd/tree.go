package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lakemap/internal/observability"
	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/match"
	"github.com/3leaps/lakemap/pkg/output"
	"github.com/3leaps/lakemap/pkg/tree"
)

type treeOptions struct {
	target        targetFlags
	depth         int
	parallel      int
	maxFolders    int
	timeout       time.Duration
	strategy      string
	ids           string
	includes      []string
	excludes      []string
	includeHidden bool
	containers    []string
	output        string
}

var treeFlagKeys = map[string]string{
	"depth":       "tree.depth",
	"parallel":    "tree.parallel",
	"max-folders": "tree.max_folders",
	"timeout":     "tree.timeout",
	"strategy":    "tree.strategy",
	"ids":         "tree.ids",
}

func init() {
	rootCmd.AddCommand(newTreeCmd())
}

func newTreeCmd() *cobra.Command {
	opts := &treeOptions{}
	cmd := &cobra.Command{
		Use:   "tree <uri>",
		Short: "Build a classified tree of containers, folders and datasets",
		Long: `Build a depth-bounded tree below a storage location.

An account URI (s3:// or file:///base) builds one container node per
container under a synthetic root. A container or folder URI builds that
subtree only. Folders carry the dataset formats found anywhere below them;
nodes that were not fully explored are marked truncated or partial.

Examples:
  lakemap tree s3:// --containers gold-lake,silver-curated --depth 3
  lakemap tree s3://gold-lake/sales/ --output table
  lakemap tree file:///srv/lake --exclude 'tmp/**' --ids stable --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(cmd, opts, args[0])
		},
	}

	d := tree.DefaultConfig()
	opts.target.register(cmd)
	cmd.Flags().IntVar(&opts.depth, "depth", d.Depth, "Levels to expand below the starting node")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 4, "Max concurrent listings")
	cmd.Flags().IntVar(&opts.maxFolders, "max-folders", d.MaxFolders, "Max folder nodes per build before truncating")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "Build timeout; a partial tree is printed when it expires (0=none)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", string(d.Strategy), "Folder metadata strategy (bottom-up|scan)")
	cmd.Flags().StringVar(&opts.ids, "ids", string(d.IDs), "Node id mode (ephemeral|stable)")
	cmd.Flags().StringArrayVar(&opts.includes, "include", nil, "Include glob for folders to enter (repeatable)")
	cmd.Flags().StringArrayVar(&opts.excludes, "exclude", nil, "Exclude glob for folders to skip (repeatable)")
	cmd.Flags().BoolVar(&opts.includeHidden, "include-hidden", false, "Enter hidden folders (names starting with '.')")
	cmd.Flags().StringSliceVar(&opts.containers, "containers", nil, "Containers to include for account URIs (comma separated)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", formatJSONL, "Output format (json|yaml|jsonl|table)")
	return cmd
}

func runTree(cmd *cobra.Command, opts *treeOptions, uri string) error {
	format, err := parseOutputFormat(opts.output)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", err)
	}

	cfg, err := loadConfig(cmd, treeFlagKeys)
	if err != nil {
		return err
	}

	scope, err := match.NewScope(match.Config{
		Includes:      opts.includes,
		Excludes:      opts.excludes,
		IncludeHidden: opts.includeHidden,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid include/exclude patterns", err)
	}

	ctx := cmd.Context()
	loc, be, err := openLocation(ctx, uri, &opts.target, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = be.Close() }()

	filter := splitList(opts.containers)
	if len(filter) > 0 && !loc.IsAccount() {
		return exitError(foundry.ExitInvalidArgument, "--containers requires an account URI", fmt.Errorf("%s names a container", loc))
	}

	tc := cfg.TreeBuild()
	tc.Scope = scope
	tc.Logger = observability.CLILogger

	buildCtx := ctx
	if cfg.Tree.Timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, cfg.Tree.Timeout)
		defer cancel()
	}

	started := time.Now()
	builder := tree.New(be, tc)
	var root *tree.Node
	if loc.IsAccount() {
		root, err = builder.BuildFullTree(buildCtx, filter)
	} else {
		root, err = builder.Build(buildCtx, loc.Container, loc.Prefix)
	}
	if err != nil {
		if root == nil || !backend.IsCanceled(err) {
			observability.CLILogger.Error("Tree build failed", zap.String("uri", loc.String()), zap.Error(err))
			return storageError("Failed to build tree", err)
		}
		observability.CLILogger.Warn("Tree build stopped early; output is partial",
			zap.String("uri", loc.String()), zap.Error(err))
	}

	dur := time.Since(started)
	observability.CLILogger.Debug("Tree built",
		zap.String("uri", loc.String()),
		zap.Any("counts", root.Count()),
		zap.Duration("duration", dur),
	)

	if err := renderTree(ctx, cmd.OutOrStdout(), format, string(loc.Provider), root, dur); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func renderTree(ctx context.Context, w io.Writer, format, providerName string, root *tree.Node, dur time.Duration) error {
	switch format {
	case formatJSON:
		return writeJSON(w, root)
	case formatYAML:
		return writeYAML(w, root)
	case formatTable:
		writeTreeTable(w, root)
		return nil
	}

	jw := output.NewJSONLWriter(w, uuid.NewString(), providerName)
	defer func() { _ = jw.Close() }()
	sum, err := output.WriteTree(ctx, jw, root)
	if err != nil {
		return err
	}
	sum.Duration = dur
	sum.DurationHuman = formatDuration(dur)
	return jw.WriteSummary(ctx, sum)
}
