package models

import (
	"math"
	"time"

	"gorm.io/gorm"
)

// GradeRecord is one student score row of the current roster dataset.
type GradeRecord struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	GenerationID  string    `gorm:"size:36;not null;index:idx_grade_records_generation_order,priority:1" json:"-"`
	Sequence      int       `gorm:"not null;default:0;index:idx_grade_records_generation_order,priority:3" json:"-"`
	ExternalID    string    `gorm:"size:255;not null" json:"external_id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	TotalScore    int       `gorm:"not null" json:"total_score"`
	ObtainedScore int       `gorm:"not null" json:"obtained_score"`
	Percentage    float64   `gorm:"not null" json:"percentage"`
	CreatedAt     time.Time `gorm:"not null;index:idx_grade_records_generation_order,priority:2,sort:desc" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SetScores assigns both score fields and re-derives the percentage.
func (r *GradeRecord) SetScores(total, obtained int) {
	r.TotalScore = total
	r.ObtainedScore = obtained
	r.Percentage = ComputePercentage(total, obtained)
}

// BeforeSave keeps Percentage in step with the score columns on every write.
func (r *GradeRecord) BeforeSave(tx *gorm.DB) error {
	r.Percentage = ComputePercentage(r.TotalScore, r.ObtainedScore)
	return nil
}

// ComputePercentage returns obtained/total as a percentage rounded to two
// decimals. A non-positive total yields 0; callers reject such rows first.
func ComputePercentage(total, obtained int) float64 {
	if total <= 0 {
		return 0
	}

	return math.Round(float64(obtained)/float64(total)*100*100) / 100
}
