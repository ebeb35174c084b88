package email

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidFrontmatter indicates invalid YAML frontmatter.
var ErrInvalidFrontmatter = errors.New("invalid frontmatter")

// bodyTemplate is a markdown body template split from its frontmatter.
type bodyTemplate struct {
	Metadata map[string]any
	Body     string
}

// parseBodyTemplate extracts the optional "---" delimited YAML frontmatter.
func parseBodyTemplate(content []byte) (*bodyTemplate, error) {
	delimiter := []byte("---")

	if !bytes.HasPrefix(content, delimiter) {
		return &bodyTemplate{Metadata: map[string]any{}, Body: string(content)}, nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delimiter), "\r\n")
	end := bytes.Index(rest, delimiter)
	if end == -1 {
		return nil, fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	front := rest[:end]
	body := bytes.TrimLeft(rest[end+len(delimiter):], "\r\n")

	metadata := map[string]any{}
	if len(bytes.TrimSpace(front)) > 0 {
		if err := yaml.Unmarshal(front, &metadata); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}

	return &bodyTemplate{Metadata: metadata, Body: string(body)}, nil
}
