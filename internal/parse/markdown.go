package parse

import (
	"io"
	"strings"
)

// Markdown parses markdown documents. It strips YAML front matter, records
// the first heading as the document title, and leaves the body text intact
// so heading structure survives into chunking.
type Markdown struct{}

// Parse implements Parser.
func (p *Markdown) Parse(r io.Reader, fileName string) (*Result, error) {
	text, err := readText(r, fileName)
	if err != nil {
		return nil, err
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	result := &Result{
		Metadata: map[string]string{
			"content_type": "markdown",
		},
	}

	body, stripped := stripFrontMatter(text)
	if stripped {
		result.Warnings = append(result.Warnings, "front matter stripped")
	}

	if title := firstHeading(body); title != "" {
		result.Metadata["title"] = title
	}

	result.Text = body
	return result, nil
}

// stripFrontMatter removes a leading YAML front matter block delimited by
// "---" lines. Returns the remaining body and whether anything was removed.
func stripFrontMatter(text string) (string, bool) {
	if !strings.HasPrefix(text, "---\n") {
		return text, false
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return text, false
	}
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	return body, true
}

// firstHeading returns the text of the first ATX heading, if any.
func firstHeading(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}
