package aiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain object",
			input:    `{"venues": []}`,
			expected: `{"venues": []}`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"venues\": []}\n```",
			expected: `{"venues": []}`,
		},
		{
			name:     "plain fence",
			input:    "```\n{\"venues\": []}\n```",
			expected: `{"venues": []}`,
		},
		{
			name:     "prose around object",
			input:    "Here is the result:\n{\"venues\": []}\nHope that helps!",
			expected: `{"venues": []}`,
		},
		{
			name:     "array response",
			input:    "```json\n[{\"query\": \"a\"}]\n```",
			expected: `[{"query": "a"}]`,
		},
		{
			name:     "array before object stays array",
			input:    `[{"query": "a"}]`,
			expected: `[{"query": "a"}]`,
		},
		{
			name:     "whitespace only",
			input:    "   \n",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanJSON(tt.input))
		})
	}
}

func TestRender(t *testing.T) {
	out := render("find {thing} in {city}", map[string]string{"thing": "planted", "city": "Berlin"})
	assert.Equal(t, "find planted in Berlin", out)
}

func TestRender_UnboundPlaceholderSurvives(t *testing.T) {
	out := render("template uses {city} and {platform}", map[string]string{"feedback": "x"})
	assert.Equal(t, "template uses {city} and {platform}", out)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
