package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

type versionOutput struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionOutput{
				Version:   versionInfo.Version,
				Commit:    versionInfo.Commit,
				BuildDate: versionInfo.BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			w := cmd.OutOrStdout()
			switch format {
			case "", "text":
				_, err := fmt.Fprintf(w, "%s %s (commit %s, built %s, %s %s)\n",
					binaryName, info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
				return err
			case formatJSON:
				return writeJSON(w, info)
			case formatYAML:
				return writeYAML(w, info)
			}
			return exitError(foundry.ExitInvalidArgument, "Invalid --output value",
				fmt.Errorf("unknown format %q (expected text, json or yaml)", format))
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format (text|json|yaml)")
	return cmd
}
