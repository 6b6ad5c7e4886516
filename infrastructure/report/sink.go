// Package report provides sinks that publish maintenance job
// summaries to S3, the local filesystem, or nowhere.
package report

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/elephant-oracle/tracker-go/domain/report"
)

// NewSink builds a sink from a destination URI. An empty destination
// returns a sink that discards summaries, "s3://bucket/prefix" writes
// to S3, and anything else is treated as a local file path.
func NewSink(ctx context.Context, destination string) (report.Sink, error) {
	if destination == "" {
		return NopSink{}, nil
	}

	if strings.HasPrefix(destination, "s3://") {
		u, err := url.Parse(destination)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", report.ErrInvalidDestination, destination)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("%w: missing bucket in %s", report.ErrInvalidDestination, destination)
		}
		return NewS3Sink(ctx, S3Config{
			Bucket: u.Host,
			Prefix: strings.TrimPrefix(u.Path, "/"),
		})
	}

	return NewFileSink(destination), nil
}

// NopSink discards summaries.
type NopSink struct{}

// Write discards the summary.
func (NopSink) Write(ctx context.Context, summary *report.Summary) error {
	return nil
}

// Ensure NopSink implements report.Sink
var _ report.Sink = NopSink{}
