package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/elephant-oracle/tracker-go/domain/execution"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for tracker logging.

// ExecutionID adds an execution ID field.
func ExecutionID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("execution_id", id)
	}
}

// EventID adds an event ID field.
func EventID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("event_id", id)
	}
}

// ErrorCode adds an error code field.
func ErrorCode(code string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("error_code", code)
	}
}

// ErrorType adds a coarse error category field.
func ErrorType(t string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("error_type", t)
	}
}

// County adds a county field.
func County(county string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("county", county)
	}
}

// Phase adds a pipeline phase field.
func Phase(phase string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("phase", phase)
	}
}

// Step adds a pipeline step field.
func Step(step string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("step", step)
	}
}

// Bucket adds a coarse status bucket field.
func Bucket(b execution.Bucket) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("bucket", string(b))
	}
}

// Table adds a table name field.
func Table(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("table", name)
	}
}

// Chunk adds transaction chunk position fields.
func Chunk(n, total int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("chunk", n).Int("chunks", total)
	}
}

// Attempt adds a retry attempt field.
func Attempt(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("attempt", n)
	}
}

// UniqueCodes adds the distinct-code count of an event.
func UniqueCodes(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("unique_codes", n)
	}
}

// Occurrences adds an occurrence count field.
func Occurrences(n int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("occurrences", n)
	}
}

// Count adds a generic count field.
func Count(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("count", n)
	}
}

// Version adds an optimistic-concurrency version field.
func Version(v int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("version", v)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Int adds an integer field with custom key.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, value)
	}
}
