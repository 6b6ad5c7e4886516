package config

import (
	"encoding/json"
)

// JSONSchema represents a JSON Schema document.
type JSONSchema struct {
	Schema               string                 `json:"$schema,omitempty"`
	ID                   string                 `json:"$id,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	AdditionalProperties *JSONSchema            `json:"additionalProperties,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Maximum              *float64               `json:"maximum,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
	Format               string                 `json:"format,omitempty"`
}

// GenerateSchema generates a JSON Schema for the tracker Config.
func GenerateSchema() *JSONSchema {
	return &JSONSchema{
		Schema:      "https://json-schema.org/draft/2020-12/schema",
		ID:          "https://github.com/elephant-oracle/tracker-go/tracker-config.schema.json",
		Title:       "Tracker Configuration",
		Description: "Configuration schema for the pipeline failure tracker",
		Type:        "object",
		Required:    []string{"name", "version", "storage"},
		Properties: map[string]*JSONSchema{
			"name": {
				Type:        "string",
				Description: "A human-readable name for this deployment",
			},
			"version": {
				Type:        "string",
				Description: "The configuration schema version",
				Default:     "1.0",
			},
			"storage":   generateStorageSchema(),
			"ingest":    generateIngestSchema(),
			"jobs":      generateJobsSchema(),
			"cache":     generateCacheSchema(),
			"logging":   generateLoggingSchema(),
			"telemetry": generateTelemetrySchema(),
		},
	}
}

func generateStorageSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Table and client settings",
		Required:    []string{"errors_table", "executions_table"},
		Properties: map[string]*JSONSchema{
			"region": {
				Type:        "string",
				Description: "AWS region (empty uses the SDK default chain)",
			},
			"endpoint": {
				Type:        "string",
				Description: "DynamoDB endpoint override for local development",
				Format:      "uri",
			},
			"access_key_id": {
				Type:        "string",
				Description: "Static access key for local endpoints (empty uses the SDK default chain)",
			},
			"secret_access_key": {
				Type:        "string",
				Description: "Static secret key paired with access_key_id",
			},
			"errors_table": {
				Type:        "string",
				Description: "Failure-tracking table name",
			},
			"executions_table": {
				Type:        "string",
				Description: "Execution-state table name",
			},
			"query_timeout": {
				Type:        "string",
				Description: "Bound on one store round trip (e.g., '10s')",
				Format:      "duration",
				Default:     "10s",
			},
			"shard_count": {
				Type:        "integer",
				Description: "Partitions in the global listing index",
				Minimum:     floatPtr(1),
				Default:     8,
			},
		},
	}
}

func generateIngestSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Event-ingestion settings",
		Properties: map[string]*JSONSchema{
			"transact_limit": {
				Type:        "integer",
				Description: "Items per store transaction",
				Minimum:     floatPtr(3),
				Maximum:     floatPtr(100),
				Default:     100,
			},
			"batch_size": {
				Type:        "integer",
				Description: "Items per batched delete request",
				Minimum:     floatPtr(1),
				Maximum:     floatPtr(25),
				Default:     25,
			},
			"marker_ttl": {
				Type:        "string",
				Description: "Retention for applied-event markers",
				Format:      "duration",
				Default:     "168h",
			},
			"retry": {
				Type:        "object",
				Description: "Write retry behavior",
				Properties: map[string]*JSONSchema{
					"max_attempts": {
						Type:    "integer",
						Minimum: floatPtr(1),
						Default: 6,
					},
					"initial_delay": {
						Type:    "string",
						Format:  "duration",
						Default: "50ms",
					},
					"multiplier": {
						Type:    "number",
						Minimum: floatPtr(1),
						Default: 2.0,
					},
				},
			},
		},
	}
}

func generateJobsSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Repair and migration job settings",
		Properties: map[string]*JSONSchema{
			"concurrency": {
				Type:        "integer",
				Description: "Items fixed in parallel",
				Minimum:     floatPtr(1),
				Default:     8,
			},
			"page_size": {
				Type:        "integer",
				Description: "Scan page size",
				Minimum:     floatPtr(1),
				Default:     100,
			},
			"report_uri": {
				Type:        "string",
				Description: "Job summary destination: s3://bucket/prefix, a file path, or empty for log-only",
			},
		},
	}
}

func generateCacheSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Query-cache settings",
		Properties: map[string]*JSONSchema{
			"backend": {
				Type:        "string",
				Description: "Cache implementation",
				Enum:        []string{"memory", "redis", "none"},
				Default:     "memory",
			},
			"ttl": {
				Type:        "string",
				Description: "How long query results are served from cache",
				Format:      "duration",
				Default:     "15s",
			},
			"redis": {
				Type:        "object",
				Description: "Redis backend settings",
				Properties: map[string]*JSONSchema{
					"addr": {
						Type:        "string",
						Description: "host:port of the redis server",
					},
					"password": {
						Type:        "string",
						Description: "Redis password",
					},
					"db": {
						Type:        "integer",
						Description: "Redis database number",
						Minimum:     floatPtr(0),
						Default:     0,
					},
				},
			},
		},
	}
}

func generateLoggingSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Logging settings",
		Properties: map[string]*JSONSchema{
			"level": {
				Type:        "string",
				Description: "Minimum log level",
				Enum:        []string{"trace", "debug", "info", "warn", "error"},
				Default:     "info",
			},
			"format": {
				Type:        "string",
				Description: "Output format",
				Enum:        []string{"json", "console"},
				Default:     "json",
			},
		},
	}
}

func generateTelemetrySchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Tracing and metrics settings",
		Properties: map[string]*JSONSchema{
			"enabled": {
				Type:        "boolean",
				Description: "Enable telemetry export",
				Default:     false,
			},
			"endpoint": {
				Type:        "string",
				Description: "OTLP gRPC endpoint (empty exports to stdout)",
			},
			"service_name": {
				Type:        "string",
				Description: "Service name in traces and metrics",
				Default:     "tracker",
			},
			"insecure": {
				Type:        "boolean",
				Description: "Disable TLS for the OTLP connection",
				Default:     false,
			},
		},
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

// SchemaJSON returns the JSON Schema as a JSON string.
func SchemaJSON() (string, error) {
	schema := GenerateSchema()
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
