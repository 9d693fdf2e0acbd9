// Package extract provides plain-text extraction from stored PDF files.
package extract

import (
	"errors"
	"fmt"
	"os"
)

// ErrEncrypted is returned when the source PDF is encrypted and
// cannot be processed.
var ErrEncrypted = errors.New("pdf is encrypted")

// Extractor extracts plain text from policy PDF files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// File reads the PDF at path and returns its text content with
// leading/trailing whitespace trimmed. Returns ErrEncrypted (wrapped)
// for encrypted input.
func (e *Extractor) File(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.Bytes(content)
}

// Bytes extracts text from PDF content held in memory.
func (e *Extractor) Bytes(content []byte) (string, error) {
	return extractPDF(content)
}
