package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "only blanks",
			input:    []string{"", "  ", "\t"},
			expected: []string{},
		},
		{
			name:     "lowercases and dedupes",
			input:    []string{"Create", "create", "CREATE"},
			expected: []string{"create"},
		},
		{
			name:     "keeps first occurrence order",
			input:    []string{"  EXPORT ", "view", "Export", "", "delete"},
			expected: []string{"export", "view", "delete"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimLower(tt.input))
		})
	}
}
