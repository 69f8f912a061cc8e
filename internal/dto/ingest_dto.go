package dto

import "github.com/noah-isme/grade-roster-api/internal/ingest"

// IngestRequest carries an uploaded roster file.
type IngestRequest struct {
	FileName string
	// Kind is the declared container kind; when empty it is taken from FileName.
	Kind string
	Data []byte
}

// IngestResponse summarises a completed ingestion.
type IngestResponse struct {
	GenerationID  string                `json:"generation_id"`
	InsertedCount int                   `json:"inserted_count"`
	RejectedCount int                   `json:"rejected_count"`
	TotalRows     int                   `json:"total_rows"`
	Rejections    []ingest.RowRejection `json:"rejections,omitempty"`
	Warnings      []string              `json:"warnings,omitempty"`
}

// ParsedRoster is returned alongside a store outage so a parsed upload is not lost.
type ParsedRoster struct {
	Records       []ingest.Candidate `json:"records"`
	RejectedCount int                `json:"rejected_count"`
	TotalRows     int                `json:"total_rows"`
}
