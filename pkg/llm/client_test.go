package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fences",
			input:    `{"agent": "blitz"}`,
			expected: `{"agent": "blitz"}`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"agent\": \"blitz\"}\n```",
			expected: `{"agent": "blitz"}`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"agent\": \"chat\"}\n```",
			expected: `{"agent": "chat"}`,
		},
		{
			name:     "html fence",
			input:    "```html\n<!DOCTYPE html><html></html>\n```",
			expected: "<!DOCTYPE html><html></html>",
		},
		{
			name:     "leading prose before fence",
			input:    "Here you go:\n```json\n{\"a\": 1}\n```\nanything after",
			expected: `{"a": 1}`,
		},
		{
			name:     "whitespace only",
			input:    "  \n ",
			expected: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripFences(tt.input))
		})
	}
}

func TestClientDisabledWithoutKey(t *testing.T) {
	c := New("")
	assert.False(t, c.Enabled())

	_, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestConvertMessageRejectsUnknownRole(t *testing.T) {
	_, err := convertMessage(Message{Role: "narrator", Content: "x"})
	assert.Error(t, err)
}
