package textsource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxFileSize caps the inputs read from disk.
const MaxFileSize = 10 * 1024 * 1024

var plainTextExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

// UnsupportedFormatError is returned for files that need a document extractor.
type UnsupportedFormatError struct {
	Path      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q for %s: only plain-text files (%s) can be read; extract text from documents first",
		e.Extension, e.Path, strings.Join(SupportedExtensions(), ", "))
}

// ExtractionError wraps failures while reading text out of a supported file.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting text from %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

var ErrTooLarge = errors.New("file is too large")

func SupportedExtensions() []string {
	return []string{".md", ".markdown", ".text", ".txt"}
}

// ReadPlainText returns the trimmed contents of a plain-text file.
func ReadPlainText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !plainTextExtensions[ext] {
		return "", &UnsupportedFormatError{Path: path, Extension: ext}
	}

	file, err := os.Open(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}
	defer file.Close()

	text, err := Read(file)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}
	return text, nil
}

// Read consumes r up to MaxFileSize and returns its trimmed UTF-8 text.
func Read(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxFileSize {
		return "", fmt.Errorf("%w: limit is %d MB", ErrTooLarge, MaxFileSize/(1024*1024))
	}
	if !utf8.Valid(data) {
		return "", errors.New("content is not valid UTF-8 text")
	}

	return strings.TrimSpace(strings.TrimPrefix(string(data), "\ufeff")), nil
}

// Minimum input sizes front ends enforce before screening. The pipeline itself
// accepts any input.
const (
	MinResumeChars         = 50
	MinJobDescriptionChars = 20
)

// LongEnough reports whether text has at least min characters once trimmed.
func LongEnough(text string, min int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= min
}
