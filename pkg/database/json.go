package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON stores a typed value in a JSON/JSONB column. The zero value maps to NULL.
type JSON[T any] struct {
	V     T
	Valid bool
}

// NewJSON wraps v as a non-null JSON value
func NewJSON[T any](v T) JSON[T] {
	return JSON[T]{V: v, Valid: true}
}

// Value implements driver.Valuer. It returns a string so that postgres
// casts the parameter to jsonb instead of bytea.
func (j JSON[T]) Value() (driver.Value, error) {
	if !j.Valid {
		return nil, nil
	}
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (j *JSON[T]) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		var zero T
		j.V, j.Valid = zero, false
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}

	if len(raw) == 0 || string(raw) == "null" {
		var zero T
		j.V, j.Valid = zero, false
		return nil
	}
	if err := json.Unmarshal(raw, &j.V); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	j.Valid = true
	return nil
}
