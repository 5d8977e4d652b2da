package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallToolResultText(t *testing.T) {
	tests := []struct {
		name    string
		content []Content
		want    string
	}{
		{"single block", []Content{{Type: "text", Text: "Echo: hi"}}, "Echo: hi"},
		{"several blocks", []Content{{Type: "text", Text: "a"}, {Type: "text", Text: "b"}}, "a\nb"},
		{"leading image block", []Content{{Type: "image"}, {Type: "text", Text: "caption"}}, "caption"},
		{"image between text", []Content{{Type: "text", Text: "a"}, {Type: "image"}, {Type: "text", Text: "b"}}, "a\nb"},
		{"no text", []Content{{Type: "image"}}, ""},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &CallToolResult{Content: tt.content}
			assert.Equal(t, tt.want, result.Text())
		})
	}
}
