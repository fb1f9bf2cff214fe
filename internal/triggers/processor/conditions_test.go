package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"autoflow/internal/triggers/models"
)

func TestEvaluateConditions(t *testing.T) {
	tests := []struct {
		name       string
		conditions string
		payload    map[string]any
		matched    bool
		mismatched []string
	}{
		{
			name:       "all fields equal with extras in payload",
			conditions: `{"a":1,"b":2}`,
			payload:    map[string]any{"a": 1, "b": 2, "c": 3},
			matched:    true,
		},
		{
			name:       "one field differs",
			conditions: `{"a":1,"b":2}`,
			payload:    map[string]any{"a": 1, "b": 3},
			mismatched: []string{"b"},
		},
		{
			name:       "empty conditions match anything",
			conditions: `{}`,
			payload:    map[string]any{"whatever": true},
			matched:    true,
		},
		{
			name:       "absent conditions match an empty payload",
			conditions: ``,
			payload:    nil,
			matched:    true,
		},
		{
			name:       "missing payload field",
			conditions: `{"source":"whatsapp"}`,
			payload:    map[string]any{},
			mismatched: []string{"source"},
		},
		{
			name:       "string and number are different",
			conditions: `{"score":"10"}`,
			payload:    map[string]any{"score": 10},
			mismatched: []string{"score"},
		},
		{
			name:       "integer and float compare as JSON numbers",
			conditions: `{"amount":120}`,
			payload:    map[string]any{"amount": 120.0},
			matched:    true,
		},
		{
			name:       "explicit null",
			conditions: `{"assignee":null}`,
			payload:    map[string]any{"assignee": nil},
			matched:    true,
		},
		{
			name:       "nested objects compare by value",
			conditions: `{"address":{"city":"Lima","zip":"15001"}}`,
			payload:    map[string]any{"address": map[string]string{"zip": "15001", "city": "Lima"}},
			matched:    true,
		},
		{
			name:       "arrays compare element-wise",
			conditions: `{"tags":["vip","new"]}`,
			payload:    map[string]any{"tags": []string{"new", "vip"}},
			mismatched: []string{"tags"},
		},
		{
			name:       "mismatches reported in condition order",
			conditions: `{"z":1,"a":1}`,
			payload:    map[string]any{"z": 2, "a": 2},
			mismatched: []string{"z", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvaluateConditions(models.Conditions(tt.conditions), tt.payload)
			assert.NoError(t, res.Err)
			assert.Equal(t, tt.matched, res.Matched)
			assert.Equal(t, tt.mismatched, res.Mismatched)
		})
	}
}

func TestEvaluateConditionsMalformed(t *testing.T) {
	res := EvaluateConditions(models.Conditions(`["source","whatsapp"]`), map[string]any{"source": "whatsapp"})
	assert.False(t, res.Matched)
	assert.ErrorIs(t, res.Err, models.ErrInvalidConditions)

	res = EvaluateConditions(models.Conditions(`{"a":1}`), map[string]any{"a": make(chan int)})
	assert.False(t, res.Matched)
	assert.Error(t, res.Err)
}
