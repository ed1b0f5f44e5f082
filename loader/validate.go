package loader

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"docqa/types"

	"github.com/gabriel-vasile/mimetype"
)

// Limits describes which uploads are accepted.
type Limits struct {
	MaxFileSize       int64
	AllowedExtensions []string
}

// FileTypeOf returns the lower-cased extension of name without the dot.
func FileTypeOf(name string) types.FileType {
	return types.FileType(strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")))
}

// ValidateFile checks the extension and size of an upload before any content
// is read.
func (l Limits) ValidateFile(name string, size int64) (types.FileType, error) {
	ft := FileTypeOf(name)
	if ft == "" || !slices.ContainsFunc(l.AllowedExtensions, func(ext string) bool {
		return strings.EqualFold(strings.TrimPrefix(ext, "."), string(ft))
	}) {
		return "", fmt.Errorf("%s: %w", name, types.ErrUnsupportedType)
	}
	if l.MaxFileSize > 0 && size > l.MaxFileSize {
		return "", fmt.Errorf("%s (%d bytes, limit %d): %w", name, size, l.MaxFileSize, types.ErrFileTooLarge)
	}
	if size == 0 {
		return "", fmt.Errorf("%s: %w", name, types.ErrEmptyFile)
	}
	return ft, nil
}

var expectedMIME = map[types.FileType][]string{
	types.FilePDF:  {"application/pdf"},
	types.FileText: {"text/plain"},
	types.FilePNG:  {"image/png", "image/jpeg"},
	types.FileJPG:  {"image/jpeg", "image/png"},
	types.FileJPEG: {"image/jpeg", "image/png"},
}

// SniffContent confirms that the bytes look like the declared type and returns
// the detected MIME type without parameters.
func SniffContent(ft types.FileType, data []byte) (string, error) {
	want, ok := expectedMIME[ft]
	if !ok {
		return "", fmt.Errorf("%s files: %w", ft, types.ErrUnsupportedType)
	}

	detected := mimetype.Detect(data)
	// html, csv, json and friends are children of text/plain
	for m := detected; m != nil; m = m.Parent() {
		for _, w := range want {
			if m.Is(w) {
				return w, nil
			}
		}
	}
	return "", fmt.Errorf("content of %s file detected as %s: %w", ft, detected.String(), types.ErrUnsupportedType)
}
