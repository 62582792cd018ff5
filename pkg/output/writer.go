package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/3leaps/lakemap/pkg/summary"
)

// Writer emits discovery results as records. Implementations are safe for
// concurrent use.
type Writer interface {
	WriteNode(ctx context.Context, node *NodeRecord) error
	WriteContainer(ctx context.Context, c *summary.Container) error
	WriteFolder(ctx context.Context, f *summary.Folder) error
	WriteDataset(ctx context.Context, d *summary.Dataset) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	Close() error
}

var _ Writer = (*JSONLWriter)(nil)

// JSONLWriter writes one Record per line. Lines from concurrent writers
// never interleave. Close does not close the underlying io.Writer.
type JSONLWriter struct {
	runID    string
	provider string

	mu     sync.Mutex
	w      io.Writer
	closed bool
}

// NewJSONLWriter stamps every record with runID and provider ("s3",
// "file").
func NewJSONLWriter(w io.Writer, runID, provider string) *JSONLWriter {
	return &JSONLWriter{w: w, runID: runID, provider: provider}
}

func (jw *JSONLWriter) WriteNode(ctx context.Context, node *NodeRecord) error {
	return jw.write(ctx, TypeNode, node)
}

func (jw *JSONLWriter) WriteContainer(ctx context.Context, c *summary.Container) error {
	return jw.write(ctx, TypeContainer, c)
}

func (jw *JSONLWriter) WriteFolder(ctx context.Context, f *summary.Folder) error {
	return jw.write(ctx, TypeFolder, f)
}

func (jw *JSONLWriter) WriteDataset(ctx context.Context, d *summary.Dataset) error {
	return jw.write(ctx, TypeDataset, d)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.write(ctx, TypeError, err)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.write(ctx, TypeSummary, sum)
}

func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	jw.closed = true
	jw.mu.Unlock()
	return nil
}

func (jw *JSONLWriter) write(ctx context.Context, typ string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal", Err: err}
	}
	line, err := json.Marshal(Record{
		Type:     typ,
		TS:       time.Now().UTC(),
		RunID:    jw.runID,
		Provider: jw.provider,
		Data:     payload,
	})
	if err != nil {
		return &WriteError{Op: "marshal", Err: err}
	}
	line = append(line, '\n')

	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFull(jw.w, line); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeFull loops over short writes so a line is never cut.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
