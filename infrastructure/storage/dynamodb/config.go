// Package dynamodb provides the DynamoDB-backed failure and execution
// state stores.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/elephant-oracle/tracker-go/domain/failure"
)

// ttlAttributeName is the item attribute the errors table expires on.
const ttlAttributeName = "expiresAt"

// Config contains DynamoDB connection configuration.
type Config struct {
	// Region is the AWS region.
	Region string

	// Endpoint is the DynamoDB endpoint (useful for local development).
	Endpoint string

	// AccessKeyID with SecretAccessKey selects static credentials
	// instead of the SDK default chain. Local endpoints accept any
	// non-empty pair.
	AccessKeyID string

	// SecretAccessKey is the static secret key.
	SecretAccessKey string

	// QueryTimeout is the default timeout for single store operations.
	QueryTimeout time.Duration

	// ErrorsTableName is the table holding error aggregates, links,
	// rollups, and event markers. No default; it must be configured.
	ErrorsTableName string

	// ExecutionsTableName is the table holding execution states and step
	// counters. No default; it must be configured.
	ExecutionsTableName string

	// TransactLimit caps the item count of one transactional write,
	// including the idempotency marker.
	TransactLimit int

	// BatchSize caps the item count of one batch write.
	BatchSize int

	// MarkerTTL is how long event markers outlive their write. Zero
	// keeps markers forever.
	MarkerTTL time.Duration

	// ShardCount is the number of partitions the recency index spreads
	// execution states across.
	ShardCount int

	// RetryMaxAttempts bounds in-store retries of unprocessed batch
	// items.
	RetryMaxAttempts int

	// RetryInitialDelay is the delay before the first such retry.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64
}

// DefaultConfig returns a sensible default configuration. Table names
// have no defaults and must be set explicitly.
func DefaultConfig() Config {
	return Config{
		Region:                 "us-east-1",
		QueryTimeout:           10 * time.Second,
		TransactLimit:          100,
		BatchSize:              25,
		MarkerTTL:              7 * 24 * time.Hour,
		ShardCount:             8,
		RetryMaxAttempts:       6,
		RetryInitialDelay:      50 * time.Millisecond,
		RetryBackoffMultiplier: 2.0,
	}
}

// ConfigOption configures the DynamoDB connection.
type ConfigOption func(*Config)

// WithRegion sets the AWS region.
func WithRegion(region string) ConfigOption {
	return func(c *Config) {
		c.Region = region
	}
}

// WithEndpoint sets the DynamoDB endpoint (for local development).
func WithEndpoint(endpoint string) ConfigOption {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithStaticCredentials sets static credentials, bypassing the SDK
// default chain.
func WithStaticCredentials(accessKeyID, secretAccessKey string) ConfigOption {
	return func(c *Config) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
	}
}

// WithQueryTimeout sets the default operation timeout.
func WithQueryTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.QueryTimeout = d
	}
}

// WithErrorsTableName sets the errors table name.
func WithErrorsTableName(name string) ConfigOption {
	return func(c *Config) {
		c.ErrorsTableName = name
	}
}

// WithExecutionsTableName sets the executions table name.
func WithExecutionsTableName(name string) ConfigOption {
	return func(c *Config) {
		c.ExecutionsTableName = name
	}
}

// WithTransactLimit caps the item count of one transactional write.
func WithTransactLimit(n int) ConfigOption {
	return func(c *Config) {
		c.TransactLimit = n
	}
}

// WithBatchSize caps the item count of one batch write.
func WithBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = n
	}
}

// WithMarkerTTL sets how long event markers are retained.
func WithMarkerTTL(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.MarkerTTL = d
	}
}

// WithShardCount sets the recency-index shard count.
func WithShardCount(n int) ConfigOption {
	return func(c *Config) {
		c.ShardCount = n
	}
}

// WithRetryPolicy sets the in-store retry policy for unprocessed batch
// items.
func WithRetryPolicy(attempts int, initialDelay time.Duration, multiplier float64) ConfigOption {
	return func(c *Config) {
		c.RetryMaxAttempts = attempts
		c.RetryInitialDelay = initialDelay
		c.RetryBackoffMultiplier = multiplier
	}
}

// Client wraps a DynamoDB client with configuration.
type Client struct {
	client *dynamodb.Client
	config Config
}

// NewClient creates a new DynamoDB client. Both table names must be
// configured.
func NewClient(ctx context.Context, opts ...ConfigOption) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.ErrorsTableName == "" {
		return nil, fmt.Errorf("%w: errors table", failure.ErrMissingTable)
	}
	if cfg.ExecutionsTableName == "" {
		return nil, fmt.Errorf("%w: executions table", failure.ErrMissingTable)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := dynamodb.NewFromConfig(awsCfg, ddbOpts...)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// DynamoDB returns the underlying DynamoDB client.
func (c *Client) DynamoDB() *dynamodb.Client {
	return c.client
}

// Config returns the connection configuration.
func (c *Client) Config() Config {
	return c.config
}

// CreateTables creates both tables if they don't exist.
func (c *Client) CreateTables(ctx context.Context) error {
	if err := c.CreateErrorsTable(ctx); err != nil {
		return err
	}
	return c.CreateExecutionsTable(ctx)
}

// CreateErrorsTable creates the errors table if it doesn't exist and
// enables marker expiry on it.
func (c *Client) CreateErrorsTable(ctx context.Context) error {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(c.config.ErrorsTableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("pk"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("sk"),
				KeyType:       types.KeyTypeRange,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("pk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("sk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("gsi1pk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("gsi1sk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("gsi2pk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("gsi2sk"),
				AttributeType: types.ScalarAttributeTypeN,
			},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(reverseIndexName),
				KeySchema: []types.KeySchemaElement{
					{
						AttributeName: aws.String("gsi1pk"),
						KeyType:       types.KeyTypeHash,
					},
					{
						AttributeName: aws.String("gsi1sk"),
						KeyType:       types.KeyTypeRange,
					},
				},
				Projection: &types.Projection{
					ProjectionType: types.ProjectionTypeAll,
				},
			},
			{
				IndexName: aws.String(countIndexName),
				KeySchema: []types.KeySchemaElement{
					{
						AttributeName: aws.String("gsi2pk"),
						KeyType:       types.KeyTypeHash,
					},
					{
						AttributeName: aws.String("gsi2sk"),
						KeyType:       types.KeyTypeRange,
					},
				},
				Projection: &types.Projection{
					ProjectionType: types.ProjectionTypeAll,
				},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	if err := c.createTable(ctx, c.config.ErrorsTableName, input); err != nil {
		return err
	}
	return c.ensureExpiry(ctx, c.config.ErrorsTableName)
}

// CreateExecutionsTable creates the executions table if it doesn't
// exist.
func (c *Client) CreateExecutionsTable(ctx context.Context) error {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(c.config.ExecutionsTableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("pk"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("sk"),
				KeyType:       types.KeyTypeRange,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("pk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("sk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("gsi1pk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("gsi1sk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("gsi2pk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("gsi2sk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(stepIndexName),
				KeySchema: []types.KeySchemaElement{
					{
						AttributeName: aws.String("gsi1pk"),
						KeyType:       types.KeyTypeHash,
					},
					{
						AttributeName: aws.String("gsi1sk"),
						KeyType:       types.KeyTypeRange,
					},
				},
				Projection: &types.Projection{
					ProjectionType: types.ProjectionTypeAll,
				},
			},
			{
				IndexName: aws.String(globalIndexName),
				KeySchema: []types.KeySchemaElement{
					{
						AttributeName: aws.String("gsi2pk"),
						KeyType:       types.KeyTypeHash,
					},
					{
						AttributeName: aws.String("gsi2sk"),
						KeyType:       types.KeyTypeRange,
					},
				},
				Projection: &types.Projection{
					ProjectionType: types.ProjectionTypeAll,
				},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	return c.createTable(ctx, c.config.ExecutionsTableName, input)
}

// createTable issues the create, tolerates a table that already
// exists, and waits for it to become active.
func (c *Client) createTable(ctx context.Context, name string, input *dynamodb.CreateTableInput) error {
	_, err := c.client.CreateTable(ctx, input)
	if err != nil {
		var resourceInUse *types.ResourceInUseException
		if !isError(err, resourceInUse) {
			return err
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(c.client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	}, 2*time.Minute)
}

// ensureExpiry enables TTL on the marker expiry attribute. Enabling is
// skipped when a previous run already turned it on.
func (c *Client) ensureExpiry(ctx context.Context, name string) error {
	desc, err := c.client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(name),
	})
	if err != nil {
		return err
	}
	if desc.TimeToLiveDescription != nil {
		switch desc.TimeToLiveDescription.TimeToLiveStatus {
		case types.TimeToLiveStatusEnabled, types.TimeToLiveStatusEnabling:
			return nil
		}
	}

	_, err = c.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(name),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(ttlAttributeName),
			Enabled:       aws.Bool(true),
		},
	})
	return err
}

// isError checks if an error is of a specific type.
func isError[T error](err error, _ T) bool {
	var target T
	return errors.As(err, &target)
}
