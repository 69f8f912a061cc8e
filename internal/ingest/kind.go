package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is a supported tabular container format.
type Kind string

const (
	KindXLSX Kind = "xlsx"
	KindCSV  Kind = "csv"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var kindAliases = map[string]Kind{
	"xlsx":            KindXLSX,
	".xlsx":           KindXLSX,
	xlsxMIME:          KindXLSX,
	"csv":             KindCSV,
	".csv":            KindCSV,
	"text/csv":        KindCSV,
	"application/csv": KindCSV,
}

// ParseKind resolves a declared kind string such as "csv", ".xlsx" or a MIME type.
func ParseKind(declared string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(key, ";"); idx >= 0 {
		key = strings.TrimSpace(key[:idx])
	}

	kind, ok := kindAliases[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, declared)
	}

	return kind, nil
}

// KindFromFileName resolves the kind from the file extension.
func KindFromFileName(name string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if ext == "" {
		return "", fmt.Errorf("%w: file %q has no extension", ErrUnsupportedFormat, name)
	}

	return ParseKind(ext)
}

// sniff rejects payloads whose detected container disagrees with the
// declared kind. It returns the detected MIME type.
func sniff(data []byte, kind Kind) (string, error) {
	detected := mimetype.Detect(data)
	isZip := detected.Is("application/zip") || detected.Is(xlsxMIME)
	isText := detected.Is("text/plain")
	for parent := detected.Parent(); parent != nil; parent = parent.Parent() {
		isZip = isZip || parent.Is("application/zip")
		isText = isText || parent.Is("text/plain")
	}

	switch kind {
	case KindXLSX:
		if !isZip {
			return detected.String(), fmt.Errorf("%w: expected a spreadsheet container, got %s", ErrDecode, detected.String())
		}
	case KindCSV:
		if isZip || !isText {
			return detected.String(), fmt.Errorf("%w: expected delimited text, got %s", ErrDecode, detected.String())
		}
	}

	return detected.String(), nil
}
