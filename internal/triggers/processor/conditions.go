package processor

import (
	"encoding/json"
	"fmt"
	"reflect"

	"autoflow/internal/triggers/models"
)

// ConditionResult is the outcome of evaluating a trigger's conditions. Err is set when
// the conditions could not be evaluated at all; such a trigger never matches.
type ConditionResult struct {
	Matched bool
	// Mismatched lists the fields that did not hold, in condition order.
	Mismatched []string
	Err        error
}

// EvaluateConditions checks that every condition field equals the same payload field.
// Values compare as JSON, so 1 and 1.0 are equal while "1" and 1 are not. An empty
// set matches anything.
func EvaluateConditions(conditions models.Conditions, payload map[string]any) ConditionResult {
	preds, err := conditions.Predicates()
	if err != nil {
		return ConditionResult{Err: err}
	}

	var mismatched []string
	for _, p := range preds {
		actual, ok := payload[p.Field]
		if !ok {
			mismatched = append(mismatched, p.Field)
			continue
		}
		normalized, err := normalize(actual)
		if err != nil {
			return ConditionResult{Err: fmt.Errorf("payload field %q: %w", p.Field, err)}
		}
		if !reflect.DeepEqual(normalized, p.Value) {
			mismatched = append(mismatched, p.Field)
		}
	}
	return ConditionResult{Matched: len(mismatched) == 0, Mismatched: mismatched}
}

// normalize gives a Go value the shape encoding/json would decode it into.
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
