package parse

import (
	"io"
	"strings"
)

// PlainText parses UTF-8 text documents as-is.
type PlainText struct{}

// Parse implements Parser.
func (p *PlainText) Parse(r io.Reader, fileName string) (*Result, error) {
	text, err := readText(r, fileName)
	if err != nil {
		return nil, err
	}

	return &Result{
		Text: strings.ReplaceAll(text, "\r\n", "\n"),
		Metadata: map[string]string{
			"content_type": "text",
		},
	}, nil
}
