package ingest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/grade-roster-api/internal/models"
)

const defaultMaxRejectionSamples = 20

// Candidate is a validated row ready to be stored.
type Candidate struct {
	ExternalID    string  `json:"external_id"`
	Name          string  `json:"name"`
	TotalScore    int     `json:"total_score"`
	ObtainedScore int     `json:"obtained_score"`
	Percentage    float64 `json:"percentage"`
}

// RowError explains why a single row was not accepted.
type RowError struct {
	Field  string
	Reason string
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RowRejection records a skipped row for reporting.
type RowRejection struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Batch is the outcome of transforming a whole table.
type Batch struct {
	Candidates    []Candidate
	Total         int
	Rejected      int
	Rejections    []RowRejection
	MissingFields []Field
}

// TransformerOptions tunes row acceptance.
type TransformerOptions struct {
	// StrictScoreBounds rejects rows whose obtained score exceeds the total.
	StrictScoreBounds   bool
	MaxRejectionSamples int
}

// Transformer validates canonical rows and derives record candidates.
type Transformer struct {
	normalizer *Normalizer
	policy     *bluemonday.Policy
	strict     bool
	maxSamples int
}

// NewTransformer constructs a transformer. A nil normalizer uses the default header table.
func NewTransformer(normalizer *Normalizer, opts TransformerOptions) *Transformer {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	maxSamples := opts.MaxRejectionSamples
	if maxSamples <= 0 {
		maxSamples = defaultMaxRejectionSamples
	}

	return &Transformer{
		normalizer: normalizer,
		policy:     bluemonday.StrictPolicy(),
		strict:     opts.StrictScoreBounds,
		maxSamples: maxSamples,
	}
}

// Run drains reader, keeping valid candidates and counting rejected rows.
// A table in which no row is valid fails with ErrNoValidRecords.
func (t *Transformer) Run(ctx context.Context, reader RowReader) (Batch, error) {
	batch := Batch{
		Candidates:    make([]Candidate, 0),
		MissingFields: t.normalizer.Missing(reader.Header()),
	}

	for {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}

		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Batch{}, err
		}
		batch.Total++

		candidate, err := t.Build(t.normalizer.Normalize(raw))
		if err != nil {
			batch.Rejected++
			if len(batch.Rejections) < t.maxSamples {
				batch.Rejections = append(batch.Rejections, RowRejection{Line: reader.Line(), Reason: err.Error()})
			}
			continue
		}
		batch.Candidates = append(batch.Candidates, candidate)
	}

	if len(batch.Candidates) == 0 {
		return batch, fmt.Errorf("%w: %d of %d rows rejected", ErrNoValidRecords, batch.Rejected, batch.Total)
	}

	return batch, nil
}

// Build turns one canonical row into a candidate.
func (t *Transformer) Build(row CanonicalRow) (Candidate, error) {
	externalID := strings.TrimSpace(row[FieldExternalID])
	if externalID == "" {
		return Candidate{}, &RowError{Field: FieldExternalID.Key(), Reason: "is required"}
	}

	name, err := t.CleanName(row[FieldName])
	if err != nil {
		return Candidate{}, err
	}

	total, err := parseScore(FieldTotalScore, row)
	if err != nil {
		return Candidate{}, err
	}
	obtained, err := parseScore(FieldObtainedScore, row)
	if err != nil {
		return Candidate{}, err
	}

	if err := t.CheckScores(total, obtained); err != nil {
		return Candidate{}, err
	}

	return Candidate{
		ExternalID:    externalID,
		Name:          name,
		TotalScore:    total,
		ObtainedScore: obtained,
		Percentage:    models.ComputePercentage(total, obtained),
	}, nil
}

// CleanName strips markup and surrounding space, rejecting empty names.
func (t *Transformer) CleanName(name string) (string, error) {
	cleaned := strings.TrimSpace(html.UnescapeString(t.policy.Sanitize(name)))
	if cleaned == "" {
		return "", &RowError{Field: FieldName.Key(), Reason: "is required"}
	}
	return cleaned, nil
}

// CheckScores applies the score constraints shared by ingestion and edits.
func (t *Transformer) CheckScores(total, obtained int) error {
	if total <= 0 {
		return &RowError{Field: FieldTotalScore.Key(), Reason: "must be greater than zero"}
	}
	if obtained < 0 {
		return &RowError{Field: FieldObtainedScore.Key(), Reason: "must not be negative"}
	}
	if t.strict && obtained > total {
		return &RowError{Field: FieldObtainedScore.Key(), Reason: "must not exceed total_score"}
	}
	return nil
}

func parseScore(field Field, row CanonicalRow) (int, error) {
	raw, ok := row[field]
	value := strings.TrimSpace(raw)
	if !ok || value == "" {
		return 0, &RowError{Field: field.Key(), Reason: "is required"}
	}

	if n, err := strconv.Atoi(value); err == nil {
		return n, nil
	}

	// Spreadsheets may render whole numbers as "85.0".
	whole, fraction, found := strings.Cut(value, ".")
	if found && fraction != "" && strings.Trim(fraction, "0") == "" {
		if n, err := strconv.Atoi(whole); err == nil && whole != "" && whole != "-" && whole != "+" {
			return n, nil
		}
	}
	return 0, &RowError{Field: field.Key(), Reason: fmt.Sprintf("%q is not an integer", value)}
}
