package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/elephant-oracle/tracker-go/domain/report"
)

// FileSink writes summaries to a local file. Each write replaces the
// file, so the path always holds the latest run.
type FileSink struct {
	path string
}

// NewFileSink creates a file sink for the given path. Parent
// directories are created on first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Write replaces the file with the summary as JSON.
func (f *FileSink) Write(ctx context.Context, summary *report.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errors.Join(report.ErrWriteFailed, err)
	}
	body = append(body, '\n')

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Join(report.ErrWriteFailed, err)
		}
	}

	if err := os.WriteFile(f.path, body, 0o644); err != nil {
		return errors.Join(report.ErrWriteFailed, err)
	}
	return nil
}

// Path returns the destination file path.
func (f *FileSink) Path() string {
	return f.path
}

// Ensure FileSink implements report.Sink
var _ report.Sink = (*FileSink)(nil)
