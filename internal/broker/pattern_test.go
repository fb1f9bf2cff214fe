package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesTopicPatterns(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"#", "lead.created", true},
		{"#", "lead.status.changed", true},
		{"#", "", true},
		{"lead.#", "lead.created", true},
		{"lead.#", "lead.status.changed", true},
		{"lead.#", "lead", true},
		{"lead.#", "order.created", false},
		{"lead.*", "lead.created", true},
		{"lead.*", "lead.status.changed", false},
		{"*.created", "order.created", true},
		{"*.created", "order.item.created", false},
		{"#.changed", "lead.status.changed", true},
		{"lead.#.changed", "lead.changed", true},
		{"lead.#.changed", "lead.status.owner.changed", true},
		{"lead.#.#", "lead.a.b", true},
		{"lead.created", "lead.created", true},
		{"lead.created", "lead.created.v2", false},
	}
	for _, tc := range cases {
		t.Run(tc.pattern+"/"+tc.key, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(KindTopic, tc.pattern, tc.key))
		})
	}
}

func TestMatchesDirectAndFanout(t *testing.T) {
	assert.True(t, Matches(KindDirect, "lead.created", "lead.created"))
	assert.False(t, Matches(KindDirect, "lead.*", "lead.created"))
	assert.True(t, Matches(KindFanout, "", "anything.at.all"))
}

func TestValidatePattern(t *testing.T) {
	assert.ErrorIs(t, validatePattern(KindTopic, " "), ErrInvalidPattern)
	assert.NoError(t, validatePattern(KindFanout, ""))
	assert.NoError(t, validatePattern(KindTopic, "#"))
}
