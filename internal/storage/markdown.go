package storage

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abatilo/taskflow/internal/task"
)

const frontmatterDelimiter = "---"

// ParseMarkdown parses a markdown file with YAML frontmatter into a Task.
// The body after the frontmatter becomes the description.
func ParseMarkdown(content []byte) (*task.Task, error) {
	lines := strings.Split(string(content), "\n")
	if len(lines) < 2 || !isDelimiter(lines[0]) {
		return nil, &parseError{"missing YAML frontmatter"}
	}

	var frontmatterEnd int
	for i := 1; i < len(lines); i++ {
		if isDelimiter(lines[i]) {
			frontmatterEnd = i
			break
		}
	}
	if frontmatterEnd == 0 {
		return nil, &parseError{"unclosed YAML frontmatter"}
	}

	var t task.Task
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:frontmatterEnd], "\n")), &t); err != nil {
		return nil, &parseError{"invalid YAML: " + err.Error()}
	}
	if t.ID == "" {
		return nil, &parseError{"missing id"}
	}

	if frontmatterEnd+1 < len(lines) {
		t.Description = strings.TrimSpace(strings.Join(lines[frontmatterEnd+1:], "\n"))
	}
	return &t, nil
}

// isDelimiter matches only an unindented "---". Multi-line values inside the
// frontmatter are indented block scalars and may contain "---" lines of their own.
func isDelimiter(line string) bool {
	return strings.TrimRight(line, "\r") == frontmatterDelimiter
}

// SerializeMarkdown converts a Task to markdown with YAML frontmatter.
func SerializeMarkdown(t *task.Task) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelimiter + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	buf.WriteString(frontmatterDelimiter + "\n")

	if t.Description != "" {
		buf.WriteString("\n")
		buf.WriteString(t.Description)
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// parseError represents a parsing error.
type parseError struct {
	msg string
}

func (e *parseError) Error() string {
	return e.msg
}
