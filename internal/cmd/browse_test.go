package cmd

import (
	"encoding/json"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lakemap/pkg/classify"
	"github.com/3leaps/lakemap/pkg/output"
	"github.com/3leaps/lakemap/pkg/summary"
)

func TestContainersCmd(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newContainersCmd(), "file://"+base, "--output", "json")
	require.NoError(t, err)

	var got []summary.Container
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)

	byName := map[string]summary.Container{}
	for _, c := range got {
		byName[c.Name] = c
	}
	gold := byName["gold-lake"]
	assert.Equal(t, classify.ContainerGold, gold.Type)
	assert.Equal(t, 2, gold.FolderCount)
	assert.True(t, gold.HasDatasetFiles)
	assert.Equal(t, []classify.Format{classify.FormatDelta, classify.FormatParquet}, gold.DatasetFormats)

	bronze := byName["bronze-raw"]
	assert.Equal(t, classify.ContainerBronze, bronze.Type)
	assert.False(t, bronze.HasDatasetFiles)
	assert.Empty(t, bronze.DatasetFormats)
}

func TestContainersCmd_FilterAndTable(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newContainersCmd(), "file://"+base, "--containers", "bronze-raw", "--output", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "bronze-raw")
	assert.Contains(t, out, "bronze")
	assert.NotContains(t, out, "gold-lake")
}

func TestContainersCmd_JSONL(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newContainersCmd(), "file://"+base)
	require.NoError(t, err)

	records := decodeRecords(t, out)
	require.Len(t, records, 3)
	assert.Equal(t, output.TypeContainer, records[0].Type)
	assert.Equal(t, output.TypeContainer, records[1].Type)
	assert.Equal(t, output.TypeSummary, records[2].Type)
}

func TestContainersCmd_RequiresAccount(t *testing.T) {
	base := newLake(t)

	_, err := execute(t, newContainersCmd(), "file://"+base+"/gold-lake", "--base-dir", base)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
}

func TestFoldersCmd_Container(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newFoldersCmd(), "file://"+base+"/gold-lake/", "--base-dir", base, "--output", "json")
	require.NoError(t, err)

	var got []summary.Folder
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	names := make([]string, len(got))
	for i, f := range got {
		names[i] = f.Name
		assert.Equal(t, "gold-lake", f.ContainerName)
	}
	assert.ElementsMatch(t, []string{"hr", "sales"}, names)
}

func TestFoldersCmd_Folder(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newFoldersCmd(), "file://"+base+"/gold-lake/sales", "--base-dir", base, "--output", "json", "--ids", "stable")
	require.NoError(t, err)

	var got []summary.Folder
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	f := got[0]
	assert.Equal(t, "sales", f.Name)
	assert.Equal(t, "gold-lake/sales", f.Path)
	assert.Equal(t, 2, f.FolderCount)
	assert.Equal(t, 2, f.EntryCount)
	assert.Equal(t, []classify.Format{classify.FormatParquet}, f.DatasetFormats)
}

func TestFoldersCmd_RequiresContainer(t *testing.T) {
	base := newLake(t)

	_, err := execute(t, newFoldersCmd(), "file://"+base)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
}

func TestDatasetsCmd(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newDatasetsCmd(), "file://"+base, "--containers", "gold-lake", "--output", "json")
	require.NoError(t, err)

	var got []summary.Dataset
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	formats := map[classify.Format]string{}
	for _, d := range got {
		formats[d.Format] = d.Path
		assert.Equal(t, "gold-lake", d.ContainerName)
	}
	assert.Equal(t, "gold-lake/sales/orders/part-0.parquet", formats[classify.FormatParquet])
	assert.Equal(t, "gold-lake/hr/_delta_log/000.json", formats[classify.FormatDelta])
}

func TestDatasetsCmd_FolderTable(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newDatasetsCmd(), "file://"+base+"/gold-lake/sales/", "--base-dir", base, "--output", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "part-0")
	assert.Contains(t, out, "parquet")
	assert.NotContains(t, out, "_delta_log")
}

func TestDatasetsCmd_JSONL(t *testing.T) {
	base := newLake(t)

	out, err := execute(t, newDatasetsCmd(), "file://"+base)
	require.NoError(t, err)

	records := decodeRecords(t, out)
	require.Len(t, records, 3)
	var sum output.SummaryRecord
	require.NoError(t, json.Unmarshal(records[2].Data, &sum))
	assert.EqualValues(t, 2, sum.Datasets)
}

func TestVersionCmd(t *testing.T) {
	orig := versionInfo
	t.Cleanup(func() { SetVersionInfo(orig.Version, orig.Commit, orig.BuildDate) })
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")

	out, err := execute(t, newVersionCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "lakemap 1.2.3 (commit abc123")

	out, err = execute(t, newVersionCmd(), "--output", "json")
	require.NoError(t, err)
	var v versionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "1.2.3", v.Version)
	assert.Equal(t, "2026-01-01", v.BuildDate)

	_, err = execute(t, newVersionCmd(), "--output", "xml")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
}
