package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/3leaps/lakemap/pkg/classify"
	"github.com/3leaps/lakemap/pkg/summary"
	"github.com/3leaps/lakemap/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, out string) []Record {
	t.Helper()
	var recs []Record
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		recs = append(recs, r)
	}
	return recs
}

func TestJSONLWriter_RecordTypes(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-7", "file")
	ctx := context.Background()

	require.NoError(t, w.WriteNode(ctx, &NodeRecord{ID: "n1", Kind: tree.KindDataset, Format: classify.FormatParquet}))
	require.NoError(t, w.WriteContainer(ctx, &summary.Container{Name: "gold-lake", Type: classify.ContainerGold}))
	require.NoError(t, w.WriteFolder(ctx, &summary.Folder{Name: "sales", ContainerName: "gold-lake", FolderCount: 2}))
	require.NoError(t, w.WriteDataset(ctx, &summary.Dataset{Name: "orders", Format: classify.FormatParquet}))
	require.NoError(t, w.WriteError(ctx, &ErrorRecord{Code: ErrCodePartial, Message: "throttled", Path: "gold-lake/hr"}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{Datasets: 1, Duration: time.Second, Partial: true}))

	recs := lines(t, buf.String())
	require.Len(t, recs, 6)
	want := []string{TypeNode, TypeContainer, TypeFolder, TypeDataset, TypeError, TypeSummary}
	for i, r := range recs {
		assert.Equal(t, want[i], r.Type)
		assert.Equal(t, "run-7", r.RunID)
		assert.Equal(t, "file", r.Provider)
		assert.False(t, r.TS.IsZero())
	}

	var node NodeRecord
	require.NoError(t, json.Unmarshal(recs[0].Data, &node))
	assert.Equal(t, classify.FormatParquet, node.Format)

	var c summary.Container
	require.NoError(t, json.Unmarshal(recs[1].Data, &c))
	assert.Equal(t, classify.ContainerGold, c.Type)

	var sum SummaryRecord
	require.NoError(t, json.Unmarshal(recs[5].Data, &sum))
	assert.Equal(t, time.Second, sum.Duration)
	assert.True(t, sum.Partial)
}

func TestJSONLWriter_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run", "s3")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = w.WriteNode(context.Background(), &NodeRecord{ID: "n", Depth: g*50 + i})
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, lines(t, buf.String()), 400)
}

func TestJSONLWriter_Failures(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		w     io.Writer
		ctx   context.Context
		close bool
		want  error
		op    string
	}{
		{"canceled", &bytes.Buffer{}, canceled, false, context.Canceled, ""},
		{"closed", &bytes.Buffer{}, context.Background(), true, ErrWriterClosed, ""},
		{"write error", writerFunc(func([]byte) (int, error) { return 0, errors.New("disk full") }), context.Background(), false, nil, "write"},
		{"no progress", writerFunc(func([]byte) (int, error) { return 0, nil }), context.Background(), false, io.ErrShortWrite, "write"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewJSONLWriter(tt.w, "run", "s3")
			if tt.close {
				require.NoError(t, w.Close())
			}
			err := w.WriteNode(tt.ctx, &NodeRecord{ID: "a"})
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			if tt.op != "" {
				var we *WriteError
				require.ErrorAs(t, err, &we)
				assert.Equal(t, tt.op, we.Op)
			}
		})
	}
}

func TestJSONLWriter_ShortWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(writerFunc(func(p []byte) (int, error) {
		if len(p) > 7 {
			p = p[:7]
		}
		return buf.Write(p)
	}), "run", "s3")

	require.NoError(t, w.WriteNode(context.Background(), &NodeRecord{ID: "n1", Path: "lake/data/out.parquet"}))
	recs := lines(t, buf.String())
	require.Len(t, recs, 1)
	assert.Equal(t, TypeNode, recs[0].Type)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestWriteError(t *testing.T) {
	cause := errors.New("boom")
	err := &WriteError{Op: "marshal", Err: cause}
	assert.Equal(t, "output: marshal: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestRecordShapes(t *testing.T) {
	data, err := json.Marshal(Record{Type: TypeNode, RunID: "abc", Provider: "s3", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"abc"`)

	data, err = json.Marshal(NodeRecord{ID: "root", Name: "Root", Kind: tree.KindRoot})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "parent_id")
	assert.NotContains(t, string(data), `"format"`)
	assert.NotContains(t, string(data), "last_modified")
	assert.Contains(t, string(data), `"has_dataset_files":false`)

	data, err = json.Marshal(ErrorRecord{Code: ErrCodeInternal, Message: "x"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "container")
	assert.NotContains(t, string(data), "details")
}

func BenchmarkJSONLWriter_WriteNode(b *testing.B) {
	w := NewJSONLWriter(io.Discard, "run", "s3")
	node := &NodeRecord{
		ID:      "f7c1",
		Depth:   3,
		Name:    "out",
		Kind:    tree.KindDataset,
		Path:    "lake/data/2024/out.parquet",
		Format:  classify.FormatParquet,
		Formats: []classify.Format{classify.FormatParquet},
	}
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		_ = w.WriteNode(ctx, node)
	}
}
