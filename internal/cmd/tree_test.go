package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lakemap/pkg/classify"
	"github.com/3leaps/lakemap/pkg/output"
	"github.com/3leaps/lakemap/pkg/tree"
)

// newLake lays out a small lake on disk and returns its base directory.
func newLake(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("LAKEMAP_CONFIG", "")

	base := filepath.Join(dir, "lake")
	for _, f := range []string{
		"gold-lake/sales/orders/part-0.parquet",
		"gold-lake/sales/readme.md",
		"gold-lake/hr/_delta_log/000.json",
		"bronze-raw/dump/a.csv",
	} {
		p := filepath.Join(base, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	return base
}

func execute(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	if args == nil {
		args = []string{}
	}
	c.SetArgs(args)
	c.SetOut(&out)
	c.SetErr(io.Discard)
	err := c.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeRecords(t *testing.T, out string) []output.Record {
	t.Helper()
	var records []output.Record
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec), sc.Text())
		records = append(records, rec)
	}
	require.NoError(t, sc.Err())
	return records
}

func TestTreeCmd_AccountJSON(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newTreeCmd(), "file://"+base, "--output", "json", "--ids", "stable")
	require.NoError(t, err)

	var root tree.Node
	require.NoError(t, json.Unmarshal([]byte(out), &root))
	assert.Equal(t, tree.RootID, root.ID)
	assert.Equal(t, tree.KindRoot, root.Kind)
	assert.Equal(t, []classify.Format{classify.FormatDelta, classify.FormatParquet}, root.Metadata.Formats)
	require.Len(t, root.Children, 2)

	gold := root.Child("gold-lake")
	require.NotNil(t, gold)
	assert.Equal(t, classify.ContainerGold, gold.ContainerType)
	assert.Equal(t, tree.StableID(tree.KindContainer, "gold-lake"), gold.ID)

	orders := gold.Child("sales").Child("orders")
	require.NotNil(t, orders)
	require.Len(t, orders.Children, 1)
	assert.Equal(t, "part-0", orders.Children[0].Name)
	assert.Equal(t, classify.FormatParquet, orders.Children[0].Format)

	bronze := root.Child("bronze-raw")
	require.NotNil(t, bronze)
	assert.Equal(t, classify.ContainerBronze, bronze.ContainerType)
	assert.False(t, bronze.Metadata.HasDatasetFiles)
}

func TestTreeCmd_ContainerFilter(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newTreeCmd(), "file://"+base, "--containers", "GOLD-LAKE", "--output", "json")
	require.NoError(t, err)

	var root tree.Node
	require.NoError(t, json.Unmarshal([]byte(out), &root))
	require.Len(t, root.Children, 1)
	assert.Equal(t, "gold-lake", root.Children[0].Name)
}

func TestTreeCmd_FolderURI(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newTreeCmd(), "file://"+base+"/gold-lake/sales/", "--base-dir", base, "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: sales")
	assert.Contains(t, out, "path: gold-lake/sales")
	assert.Contains(t, out, "name: orders")
	assert.NotContains(t, out, "readme")
}

func TestTreeCmd_DepthTruncates(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newTreeCmd(), "file://"+base+"/gold-lake", "--base-dir", base, "--depth", "1", "--output", "json")
	require.NoError(t, err)

	var n tree.Node
	require.NoError(t, json.Unmarshal([]byte(out), &n))
	sales := n.Child("sales")
	require.NotNil(t, sales)
	assert.Equal(t, tree.StateTruncated, sales.Status.State)
	assert.Equal(t, tree.ReasonDepth, sales.Status.Reason)
	assert.True(t, sales.Metadata.HasDatasetFiles)
}

func TestTreeCmd_JSONL(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newTreeCmd(), "file://"+base)
	require.NoError(t, err)

	records := decodeRecords(t, out)
	require.NotEmpty(t, records)
	assert.Equal(t, output.TypeNode, records[0].Type)
	assert.Equal(t, "file", records[0].Provider)

	last := records[len(records)-1]
	require.Equal(t, output.TypeSummary, last.Type)
	var sum output.SummaryRecord
	require.NoError(t, json.Unmarshal(last.Data, &sum))
	assert.EqualValues(t, 2, sum.Containers)
	assert.EqualValues(t, 2, sum.Datasets)
	assert.False(t, sum.Partial)
}

func TestTreeCmd_Table(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newTreeCmd(), "file://"+base, "--output", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "gold-lake")
	assert.Contains(t, out, "    sales")
	assert.Contains(t, out, "delta,parquet")
}

func TestTreeCmd_Exclude(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newTreeCmd(), "file://"+base+"/gold-lake", "--base-dir", base, "--exclude", "hr/**", "--output", "json")
	require.NoError(t, err)

	var n tree.Node
	require.NoError(t, json.Unmarshal([]byte(out), &n))
	assert.NotNil(t, n.Child("sales"))
	assert.Nil(t, n.Child("hr"))
}

func TestTreeCmd_Errors(t *testing.T) {
	base := newLake(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unsupported scheme", []string{"gs://bucket/"}},
		{"glob in uri", []string{"s3://bucket/*.parquet"}},
		{"bad output", []string{"file://" + base, "--output", "csv"}},
		{"bad strategy", []string{"file://" + base, "--strategy", "sideways"}},
		{"bad pattern", []string{"file://" + base, "--include", "[unclosed"}},
		{"containers on container uri", []string{"file://" + base + "/gold-lake", "--base-dir", base, "--containers", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, newTreeCmd(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
		})
	}
}
