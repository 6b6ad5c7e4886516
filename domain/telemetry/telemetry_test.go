package telemetry_test

import (
	"testing"

	"github.com/elephant-oracle/tracker-go/domain/telemetry"
)

func TestWithAttributes(t *testing.T) {
	t.Parallel()

	t.Run("adds attributes to config", func(t *testing.T) {
		t.Parallel()

		attr1 := telemetry.String("error.code", "30ABC")
		attr2 := telemetry.Int("chunk.count", 2)

		opt := telemetry.WithAttributes(attr1, attr2)

		config := &telemetry.SpanConfig{}
		opt.ApplySpan(config)

		if len(config.Attributes) != 2 {
			t.Fatalf("Attributes len = %d, want 2", len(config.Attributes))
		}
		if config.Attributes[0].Key != "error.code" {
			t.Errorf("Attributes[0].Key = %s, want error.code", config.Attributes[0].Key)
		}
	})

	t.Run("appends to existing attributes", func(t *testing.T) {
		t.Parallel()

		config := &telemetry.SpanConfig{
			Attributes: []telemetry.Attribute{telemetry.String("existing", "value")},
		}

		opt := telemetry.WithAttributes(telemetry.Int("new", 1))
		opt.ApplySpan(config)

		if len(config.Attributes) != 2 {
			t.Fatalf("Attributes len = %d, want 2", len(config.Attributes))
		}
	})
}

func TestAttributeConstructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		attr telemetry.Attribute
		key  string
		val  any
	}{
		{"String", telemetry.String("execution.id", "exec-1"), "execution.id", "exec-1"},
		{"Int", telemetry.Int("links", 3), "links", 3},
		{"Int64", telemetry.Int64("total", int64(42)), "total", int64(42)},
		{"Bool", telemetry.Bool("dry_run", true), "dry_run", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.attr.Key != tt.key {
				t.Errorf("Key = %s, want %s", tt.attr.Key, tt.key)
			}
			if tt.attr.Value != tt.val {
				t.Errorf("Value = %v, want %v", tt.attr.Value, tt.val)
			}
		})
	}
}

func TestMetricOptions(t *testing.T) {
	t.Parallel()

	config := &telemetry.MetricConfig{}
	telemetry.WithDescription("events ingested").ApplyMetric(config)
	telemetry.WithUnit("1").ApplyMetric(config)

	if config.Description != "events ingested" {
		t.Errorf("Description = %s, want events ingested", config.Description)
	}
	if config.Unit != "1" {
		t.Errorf("Unit = %s, want 1", config.Unit)
	}
}
