package ingest

// decoder.go turns uploaded bytes into a lazy stream of header-keyed rows.
//
// Only the first table is read: the first sheet of a workbook or the whole of
// a delimited text file. The first non-blank row supplies the header labels.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RawRow maps header labels to the non-empty cell values of one data row.
type RawRow map[string]string

// RowReader yields data rows one at a time. It cannot be rewound.
type RowReader interface {
	// Header returns the trimmed header labels in column order.
	Header() []string
	// Next returns the next data row or io.EOF when the table is exhausted.
	Next() (RawRow, error)
	// Line reports the source row number of the row last returned by Next.
	Line() int
	Close() error
}

type rowSource interface {
	next() (cells []string, line int, err error)
	close() error
}

// Open validates the payload against kind and positions a reader on the
// first data row. A table without a header or without any data row fails
// with ErrDecode.
func Open(data []byte, kind Kind) (RowReader, error) {
	if kind != KindCSV && kind != KindXLSX {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(kind))
	}

	if _, err := sniff(data, kind); err != nil {
		return nil, err
	}

	var (
		source rowSource
		err    error
	)
	switch kind {
	case KindCSV:
		source = newCSVSource(data)
	case KindXLSX:
		source, err = newXLSXSource(data)
		if err != nil {
			return nil, err
		}
	}

	reader := &tableReader{source: source}
	if err := reader.prime(); err != nil {
		_ = source.close()
		return nil, err
	}

	return reader, nil
}

type tableReader struct {
	source      rowSource
	header      []string
	pending     []string
	pendingLine int
	line        int
}

func (r *tableReader) prime() error {
	cells, _, err := r.nextNonBlank()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: missing header row", ErrDecode)
	}
	if err != nil {
		return err
	}

	header := make([]string, len(cells))
	for i, cell := range cells {
		header[i] = strings.TrimSpace(cell)
	}
	r.header = header

	cells, line, err := r.nextNonBlank()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: no data rows after header", ErrDecode)
	}
	if err != nil {
		return err
	}
	r.pending = cells
	r.pendingLine = line

	return nil
}

func (r *tableReader) Header() []string {
	return append([]string(nil), r.header...)
}

func (r *tableReader) Next() (RawRow, error) {
	if r.pending != nil {
		cells := r.pending
		r.pending = nil
		r.line = r.pendingLine
		return r.toRow(cells), nil
	}

	cells, line, err := r.nextNonBlank()
	if err != nil {
		return nil, err
	}
	r.line = line

	return r.toRow(cells), nil
}

func (r *tableReader) Line() int {
	return r.line
}

func (r *tableReader) Close() error {
	return r.source.close()
}

func (r *tableReader) nextNonBlank() ([]string, int, error) {
	for {
		cells, line, err := r.source.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, 0, io.EOF
			}
			return nil, 0, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if !isBlank(cells) {
			return cells, line, nil
		}
	}
}

func (r *tableReader) toRow(cells []string) RawRow {
	row := make(RawRow, len(r.header))
	for i, label := range r.header {
		if label == "" || i >= len(cells) {
			continue
		}
		if strings.TrimSpace(cells[i]) == "" {
			continue
		}
		if _, seen := row[label]; seen {
			continue
		}
		row[label] = cells[i]
	}
	return row
}

func isBlank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

type csvSource struct {
	reader *csv.Reader
}

func newCSVSource(data []byte) *csvSource {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return &csvSource{reader: r}
}

func (s *csvSource) next() ([]string, int, error) {
	record, err := s.reader.Read()
	if err != nil {
		return nil, 0, err
	}
	line, _ := s.reader.FieldPos(0)
	return record, line, nil
}

func (s *csvSource) close() error {
	return nil
}

type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
	line int
}

func newXLSXSource(data []byte) (*xlsxSource, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		_ = file.Close()
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrDecode)
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &xlsxSource{file: file, rows: rows}, nil
}

func (s *xlsxSource) next() ([]string, int, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, 0, err
		}
		return nil, 0, io.EOF
	}
	s.line++

	cells, err := s.rows.Columns()
	if err != nil {
		return nil, 0, err
	}
	return cells, s.line, nil
}

func (s *xlsxSource) close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
