package ingest

import "errors"

var (
	// ErrUnsupportedFormat indicates the declared container kind is not recognised.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrDecode indicates the bytes could not be read as the declared kind.
	ErrDecode = errors.New("file could not be decoded")
	// ErrNoValidRecords indicates every row of the batch was rejected.
	ErrNoValidRecords = errors.New("no valid student records found in file")
)
