package models

import (
	"time"

	"gorm.io/datatypes"
)

// Dataset kinds recorded on a generation.
const (
	DatasetKindXLSX  = "xlsx"
	DatasetKindCSV   = "csv"
	DatasetKindEmpty = "empty"
)

// DatasetPointerID is the primary key of the single pointer row.
const DatasetPointerID = 1

// DatasetGeneration describes one published version of the roster dataset.
type DatasetGeneration struct {
	ID           string            `gorm:"primaryKey;size:36" json:"id"`
	Kind         string            `gorm:"size:16;not null" json:"kind"`
	FileName     string            `gorm:"size:255" json:"file_name"`
	Inserted     int               `gorm:"not null;default:0" json:"inserted"`
	Rejected     int               `gorm:"not null;default:0" json:"rejected"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	SupersededAt *time.Time        `gorm:"index" json:"superseded_at,omitempty"`
}

// DatasetPointer names the generation readers should see. Revision changes
// whenever a record inside that generation is edited or removed.
type DatasetPointer struct {
	ID           uint   `gorm:"primaryKey;autoIncrement:false"`
	GenerationID string `gorm:"size:36"`
	Revision     int64  `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}
