package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rodaine/table"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/lakemap/pkg/classify"
	"github.com/3leaps/lakemap/pkg/tree"
)

// Output formats accepted by --output.
const (
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatJSONL = "jsonl"
	formatTable = "table"
)

var (
	boldStyle = lipgloss.NewStyle().Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
)

func parseOutputFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case formatJSON, formatYAML, formatJSONL, formatTable:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (expected json, yaml, jsonl or table)", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// newTable creates a table writing to w with the first column in bold.
func newTable(w io.Writer, headers ...any) table.Table {
	tbl := table.New(headers...)
	tbl.WithFirstColumnFormatter(func(format string, vals ...any) string {
		return boldStyle.Render(fmt.Sprintf(format, vals...))
	})
	tbl.WithPadding(2)
	tbl.WithWidthFunc(lipgloss.Width)
	tbl.WithWriter(w)
	return tbl
}

func formatList(formats []classify.Format) string {
	if len(formats) == 0 {
		return dimStyle.Render("-")
	}
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func statusCell(s tree.Status) string {
	switch s.State {
	case tree.StateTruncated:
		return warnStyle.Render(string(s.State) + " (" + string(s.Reason) + ")")
	case tree.StatePartial:
		return warnStyle.Render(string(s.State))
	}
	return string(s.State)
}

// writeTreeTable prints one row per node with names indented by depth.
func writeTreeTable(w io.Writer, root *tree.Node) {
	tbl := newTable(w, "NAME", "KIND", "TYPE", "FORMATS", "STATUS")
	var walk func(n *tree.Node, depth int)
	walk = func(n *tree.Node, depth int) {
		typ := string(n.ContainerType)
		if n.Kind == tree.KindDataset {
			typ = string(n.Format)
		}
		if typ == "" {
			typ = dimStyle.Render("-")
		}
		tbl.AddRow(strings.Repeat("  ", depth)+n.Name, string(n.Kind), typ, formatList(n.Metadata.Formats), statusCell(n.Status))
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	tbl.Print()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
