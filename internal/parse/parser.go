// Package parse provides the document parser capability consumed by the
// ingestion pipeline. Parsers are thin and replaceable: the pipeline only
// depends on the Parser interface, never on a concrete format.
package parse

import (
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// Result is the output of parsing one document.
type Result struct {
	// Text is the extracted plain text.
	Text string

	// Metadata carries format-specific attributes (title, content type).
	Metadata map[string]string

	// Warnings are recoverable conditions encountered during parsing.
	Warnings []string
}

// Parser extracts text from a raw document stream.
type Parser interface {
	// Parse reads the stream and returns extracted text plus metadata.
	Parse(r io.Reader, fileName string) (*Result, error)
}

// Registry selects a parser by file extension.
type Registry struct {
	byExt    map[string]Parser
	fallback Parser
}

// NewRegistry returns a registry with the built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:    make(map[string]Parser),
		fallback: &PlainText{},
	}
	r.Register(&Markdown{}, ".md", ".markdown")
	r.Register(&PlainText{}, ".txt", ".text", ".log")
	return r
}

// Register maps the given extensions to a parser.
func (r *Registry) Register(p Parser, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// ForFile returns the parser for the file's extension, falling back to
// the plain text parser for unknown extensions.
func (r *Registry) ForFile(name string) Parser {
	if p, ok := r.byExt[strings.ToLower(filepath.Ext(name))]; ok {
		return p
	}
	return r.fallback
}

// readText reads the full stream and rejects non-UTF-8 content.
func readText(r io.Reader, fileName string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", qerrors.Wrap(qerrors.ErrCodeInvalidInput, err)
	}
	if !utf8.Valid(data) {
		return "", qerrors.New(qerrors.ErrCodeInvalidInput,
			"document is not valid UTF-8 text: "+fileName, nil)
	}
	return string(data), nil
}
