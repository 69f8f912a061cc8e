package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/noah-isme/grade-roster-api/internal/dto"
	"github.com/noah-isme/grade-roster-api/internal/ingest"
)

var (
	// ErrNotFound indicates no record with the requested id is visible.
	ErrNotFound = errors.New("grade record not found")
	// ErrInvalidInput indicates a request failed field constraints.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIngestionFailed indicates the batch could not be published; the previous dataset is unchanged.
	ErrIngestionFailed = errors.New("ingestion failed")
	// ErrStoreUnavailable indicates the persistence backend could not be reached.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
)

// ErrorKind is the machine-readable category of a failure.
type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindDecodeError       ErrorKind = "decode_error"
	KindNoValidRecords    ErrorKind = "no_valid_records"
	KindIngestionFailed   ErrorKind = "ingestion_failed"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindNotFound          ErrorKind = "not_found"
	KindStoreUnavailable  ErrorKind = "store_unavailable"
	KindPayloadTooLarge   ErrorKind = "payload_too_large"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies err into an ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ingest.ErrDecode):
		return KindDecodeError
	case errors.Is(err, ingest.ErrNoValidRecords):
		return KindNoValidRecords
	case errors.Is(err, ErrIngestionFailed):
		return KindIngestionFailed
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUploadTooLarge):
		return KindPayloadTooLarge
	default:
		return KindInternal
	}
}

// StoreUnavailableError reports a backend outage during ingestion together
// with the rows that were parsed before it.
type StoreUnavailableError struct {
	Parsed *dto.ParsedRoster
	Err    error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrStoreUnavailable.Error(), e.Err)
}

func (e *StoreUnavailableError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// classifyStoreError maps persistence errors onto the service taxonomy.
func classifyStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isConnectionError(err):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func invalidInput(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			fields = append(fields, fmt.Sprintf("%s failed %s", fieldErr.Field(), fieldErr.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
	}

	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
