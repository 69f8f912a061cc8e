package dto

import (
	"time"

	"github.com/noah-isme/grade-roster-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalCount  int64 `json:"total_count"`
	Limit       int   `json:"limit"`
	HasNext     bool  `json:"has_next"`
	HasPrev     bool  `json:"has_prev"`
}

// GradeRecordResponse serializes a stored roster record.
type GradeRecordResponse struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"external_id"`
	Name          string    `json:"name"`
	TotalScore    int       `json:"total_score"`
	ObtainedScore int       `json:"obtained_score"`
	Percentage    float64   `json:"percentage"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GradeRecordListResponse wraps one page of roster records.
type GradeRecordListResponse struct {
	Items      []GradeRecordResponse `json:"items"`
	Pagination PaginationMeta        `json:"pagination"`
}

// GradeRecordUpdateRequest carries an edit of one record. Every field is required.
type GradeRecordUpdateRequest struct {
	Name          *string `json:"name" validate:"required"`
	TotalScore    *int    `json:"total_score" validate:"required,gt=0"`
	ObtainedScore *int    `json:"obtained_score" validate:"required,gte=0"`
}

// SummaryResponse reports the size and freshness of the current dataset.
type SummaryResponse struct {
	TotalCount int64      `json:"total_count"`
	LastUpload *time.Time `json:"last_upload"`
}

// ClearResponse reports how many records a wipe removed.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// NewGradeRecordResponse converts a record model into a DTO.
func NewGradeRecordResponse(record models.GradeRecord) GradeRecordResponse {
	return GradeRecordResponse{
		ID:            record.ID,
		ExternalID:    record.ExternalID,
		Name:          record.Name,
		TotalScore:    record.TotalScore,
		ObtainedScore: record.ObtainedScore,
		Percentage:    record.Percentage,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}
