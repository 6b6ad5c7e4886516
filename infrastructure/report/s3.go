package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/elephant-oracle/tracker-go/domain/report"
)

// S3Config configures the S3 report sink.
type S3Config struct {
	// Bucket receives the summaries.
	Bucket string

	// Prefix is prepended to every object key.
	Prefix string

	// Region is the AWS region (default: us-east-1).
	Region string

	// Endpoint is a custom endpoint for S3-compatible storage.
	Endpoint string
}

// S3Sink writes summaries to an S3 bucket, one object per run.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink creates an S3 sink using the default AWS credential chain.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: empty bucket", report.ErrInvalidDestination)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, err
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible storage generally requires path-style
			// addressing.
			o.UsePathStyle = true
		})
	}

	return &S3Sink{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// NewS3SinkFromClient creates a sink from an existing S3 client.
func NewS3SinkFromClient(client *s3.Client, bucket, prefix string) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Write uploads the summary as a JSON object.
func (s *S3Sink) Write(ctx context.Context, summary *report.Summary) error {
	body, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errors.Join(report.ErrWriteFailed, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(summary)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.Join(report.ErrWriteFailed, err)
	}
	return nil
}

// objectKey partitions summaries by job and day so bucket listings and
// lifecycle rules stay manageable.
func (s *S3Sink) objectKey(summary *report.Summary) string {
	day := summary.StartedAt.UTC().Format("2006-01-02")
	return path.Join(s.prefix, summary.Job, day, summary.RunID+".json")
}

// Ensure S3Sink implements report.Sink
var _ report.Sink = (*S3Sink)(nil)
