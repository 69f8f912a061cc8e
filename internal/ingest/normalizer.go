package ingest

import "strings"

// Field is a canonical roster column.
type Field int

const (
	FieldExternalID Field = iota
	FieldName
	FieldTotalScore
	FieldObtainedScore
)

// Fields lists every canonical field in declaration order.
var Fields = []Field{FieldExternalID, FieldName, FieldTotalScore, FieldObtainedScore}

// Key returns the canonical key of the field.
func (f Field) Key() string {
	switch f {
	case FieldExternalID:
		return "external_id"
	case FieldName:
		return "name"
	case FieldTotalScore:
		return "total_score"
	case FieldObtainedScore:
		return "obtained_score"
	default:
		return ""
	}
}

// HeaderVariants maps each canonical field to the header spellings accepted
// for it. When a row carries several of them the earliest entry wins.
type HeaderVariants map[Field][]string

// DefaultHeaderVariants is the header table used for roster uploads.
var DefaultHeaderVariants = HeaderVariants{
	FieldExternalID:    {"external_id", "Student_ID", "student_id", "Student ID", "External ID"},
	FieldName:          {"name", "Student_Name", "student_name", "Student Name", "Name"},
	FieldTotalScore:    {"total_score", "Total_Marks", "total_marks", "Total Marks", "Total Score"},
	FieldObtainedScore: {"obtained_score", "Marks_Obtained", "marks_obtained", "Marks Obtained", "Obtained Score"},
}

// CanonicalRow holds the values of one row keyed by canonical field. Fields
// that no header supplied are absent.
type CanonicalRow map[Field]string

// Normalizer resolves header spellings onto canonical fields.
type Normalizer struct {
	variants HeaderVariants
}

// NewNormalizer builds a normalizer over the given variant table.
func NewNormalizer(variants HeaderVariants) *Normalizer {
	if variants == nil {
		variants = DefaultHeaderVariants
	}
	return &Normalizer{variants: variants}
}

// Normalize keeps only recognised headers, keyed by canonical field. Labels
// are compared exactly; the decoder has already trimmed them.
func (n *Normalizer) Normalize(raw RawRow) CanonicalRow {
	row := make(CanonicalRow, len(Fields))
	for _, field := range Fields {
		for _, variant := range n.variants[field] {
			if value, ok := raw[variant]; ok {
				row[field] = value
				break
			}
		}
	}
	return row
}

// Missing reports the canonical fields that none of the header labels can supply.
func (n *Normalizer) Missing(header []string) []Field {
	present := make(map[string]struct{}, len(header))
	for _, label := range header {
		present[strings.TrimSpace(label)] = struct{}{}
	}

	missing := make([]Field, 0)
	for _, field := range Fields {
		found := false
		for _, variant := range n.variants[field] {
			if _, ok := present[variant]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, field)
		}
	}
	return missing
}
