package email

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
)

func TestButtonExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "button",
			input:    "[!button|Get tickets](https://example.com/t?a=1&b=2)",
			contains: []string{`<a href="https://example.com/t?a=1&amp;b=2" class="btn" style="display:inline-block;`, `>Get tickets</a>`},
			excludes: []string{"!button"},
		},
		{
			name:     "plain link is untouched",
			input:    "[Programme](https://example.com/p)",
			contains: []string{`<a href="https://example.com/p">Programme</a>`},
			excludes: []string{`class="btn"`},
		},
		{
			name:     "label is escaped",
			input:    "[!button|Tom & Jerry](https://example.com)",
			contains: []string{">Tom &amp; Jerry</a>"},
		},
		{
			name:     "dangerous destination is dropped",
			input:    "[!button|Click](javascript:alert(1))",
			contains: []string{`<a href="" class="btn"`},
			excludes: []string{"javascript:"},
		},
	}

	md := goldmark.New(goldmark.WithExtensions(buttonExtension{}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, md.Convert([]byte(tt.input), &buf))
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, buf.String(), unwanted)
			}
		})
	}
}
