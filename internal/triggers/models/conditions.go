package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidConditions = errors.New("invalid trigger conditions")
	ErrInvalidActions    = errors.New("invalid trigger actions")
)

// Conditions is a JSON object of field == value predicates, all of which must hold.
type Conditions json.RawMessage

// Predicate is one field == value requirement.
type Predicate struct {
	Field string
	Value any
}

// NewConditions builds Conditions from a map. Key order follows encoding/json (sorted).
func NewConditions(fields map[string]any) (Conditions, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}
	return Conditions(raw), nil
}

// MarshalJSON keeps the stored bytes.
func (c Conditions) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return []byte(c), nil
}

// UnmarshalJSON keeps the raw bytes; validation happens in Predicates.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	*c = append((*c)[:0], data...)
	return nil
}

// IsEmpty reports whether there is nothing to check.
func (c Conditions) IsEmpty() bool {
	trimmed := bytes.TrimSpace(c)
	return len(trimmed) == 0 || string(trimmed) == "null" || string(trimmed) == "{}"
}

// Predicates decodes the object in stored key order. Anything other than a JSON object
// (or null) is ErrInvalidConditions.
func (c Conditions) Predicates() ([]Predicate, error) {
	if c.IsEmpty() {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(c))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConditions, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected object, got %v", ErrInvalidConditions, tok)
	}

	var preds []Predicate
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConditions, err)
		}
		key, _ := keyTok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrInvalidConditions, key, err)
		}
		preds = append(preds, Predicate{Field: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConditions, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidConditions)
	}
	return preds, nil
}
