package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/grade-roster-api/internal/models"
)

const (
	defaultInsertBatchSize     = 500
	defaultGenerationRetention = time.Minute
	gradeRecordOrder           = "created_at DESC, sequence ASC"
)

// Snapshot identifies the dataset version a reader is looking at.
type Snapshot struct {
	GenerationID string
	Revision     int64
}

// Empty reports whether no dataset has been published yet.
func (s Snapshot) Empty() bool {
	return s.GenerationID == ""
}

// GradeRecordFilter selects one page of a generation.
type GradeRecordFilter struct {
	GenerationID string
	Page         int
	PageSize     int
}

// ReplaceInput describes a batch that should become the current dataset.
type ReplaceInput struct {
	Kind     string
	FileName string
	Rejected int
	Metadata map[string]interface{}
	Records  []models.GradeRecord
}

// ReplaceResult reports the generation published by Replace or ClearAll.
type ReplaceResult struct {
	GenerationID string
	Inserted     int
	Removed      int64
	PublishedAt  time.Time
}

// GradeRecordRepository persists roster records behind a generation pointer.
type GradeRecordRepository interface {
	Replace(ctx context.Context, input ReplaceInput) (ReplaceResult, error)
	ClearAll(ctx context.Context) (ReplaceResult, error)
	Snapshot(ctx context.Context) (Snapshot, error)
	List(ctx context.Context, filter GradeRecordFilter) ([]models.GradeRecord, int64, error)
	Summary(ctx context.Context, generationID string) (int64, *time.Time, error)
	GetByID(ctx context.Context, id string) (models.GradeRecord, error)
	Update(ctx context.Context, id string, mutate func(*models.GradeRecord) error) (models.GradeRecord, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// GradeRecordRepositoryOptions tunes batching and garbage collection.
type GradeRecordRepositoryOptions struct {
	InsertBatchSize int
	// Retention is how long a superseded generation stays readable.
	Retention time.Duration
}

type gradeRecordRepository struct {
	db        *gorm.DB
	batchSize int
	retention time.Duration
	now       func() time.Time
}

// NewGradeRecordRepository constructs the roster repository.
func NewGradeRecordRepository(db *gorm.DB, opts GradeRecordRepositoryOptions) GradeRecordRepository {
	batchSize := opts.InsertBatchSize
	if batchSize <= 0 {
		batchSize = defaultInsertBatchSize
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = defaultGenerationRetention
	}

	return &gradeRecordRepository{
		db:        db,
		batchSize: batchSize,
		retention: retention,
		now:       time.Now,
	}
}

func (r *gradeRecordRepository) Replace(ctx context.Context, input ReplaceInput) (ReplaceResult, error) {
	kind := input.Kind
	if kind == "" {
		kind = models.DatasetKindEmpty
	}

	return r.publish(ctx, models.DatasetGeneration{
		Kind:     kind,
		FileName: input.FileName,
		Rejected: input.Rejected,
		Metadata: datatypes.JSONMap(input.Metadata),
	}, input.Records)
}

func (r *gradeRecordRepository) ClearAll(ctx context.Context) (ReplaceResult, error) {
	return r.publish(ctx, models.DatasetGeneration{Kind: models.DatasetKindEmpty}, nil)
}

// publish inserts records under a fresh generation and moves the pointer to
// it in one transaction. Readers holding the previous generation keep seeing
// it until the retention window lapses.
func (r *gradeRecordRepository) publish(ctx context.Context, generation models.DatasetGeneration, records []models.GradeRecord) (ReplaceResult, error) {
	now := r.now().UTC()
	generation.ID = uuid.NewString()
	generation.Inserted = len(records)
	generation.CreatedAt = now

	result := ReplaceResult{GenerationID: generation.ID, Inserted: len(records), PublishedAt: now}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous, err := currentSnapshot(tx)
		if err != nil {
			return err
		}
		if !previous.Empty() {
			if err := tx.Model(&models.GradeRecord{}).
				Where("generation_id = ?", previous.GenerationID).
				Count(&result.Removed).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(&generation).Error; err != nil {
			return err
		}

		for i := range records {
			records[i].ID = uuid.NewString()
			records[i].GenerationID = generation.ID
			records[i].Sequence = i
			records[i].CreatedAt = now
			records[i].UpdatedAt = now
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(records, r.batchSize).Error; err != nil {
				return err
			}
		}

		pointer := models.DatasetPointer{ID: models.DatasetPointerID, GenerationID: generation.ID, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"generation_id": generation.ID,
				"revision":      0,
				"updated_at":    now,
			}),
		}).Create(&pointer).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.DatasetGeneration{}).
			Where("id <> ? AND superseded_at IS NULL", generation.ID).
			Update("superseded_at", now).Error; err != nil {
			return err
		}

		return r.collect(tx, now)
	})
	if err != nil {
		return ReplaceResult{}, err
	}

	return result, nil
}

func (r *gradeRecordRepository) collect(tx *gorm.DB, now time.Time) error {
	cutoff := now.Add(-r.retention)
	stale := tx.Model(&models.DatasetGeneration{}).
		Select("id").
		Where("superseded_at IS NOT NULL AND superseded_at < ?", cutoff)

	if err := tx.Where("generation_id IN (?)", stale).Delete(&models.GradeRecord{}).Error; err != nil {
		return err
	}

	return tx.Where("superseded_at IS NOT NULL AND superseded_at < ?", cutoff).
		Delete(&models.DatasetGeneration{}).Error
}

func (r *gradeRecordRepository) Snapshot(ctx context.Context) (Snapshot, error) {
	return currentSnapshot(r.db.WithContext(ctx))
}

func currentSnapshot(db *gorm.DB) (Snapshot, error) {
	var pointers []models.DatasetPointer
	if err := db.Where("id = ?", models.DatasetPointerID).Limit(1).Find(&pointers).Error; err != nil {
		return Snapshot{}, err
	}
	if len(pointers) == 0 {
		return Snapshot{}, nil
	}

	return Snapshot{GenerationID: pointers[0].GenerationID, Revision: pointers[0].Revision}, nil
}

func (r *gradeRecordRepository) List(ctx context.Context, filter GradeRecordFilter) ([]models.GradeRecord, int64, error) {
	if filter.GenerationID == "" {
		return []models.GradeRecord{}, 0, nil
	}

	query := r.db.WithContext(ctx).Model(&models.GradeRecord{}).
		Where("generation_id = ?", filter.GenerationID)

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(gradeRecordOrder)
	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Limit(filter.PageSize).Offset((page - 1) * filter.PageSize)
	}

	records := make([]models.GradeRecord, 0)
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (r *gradeRecordRepository) Summary(ctx context.Context, generationID string) (int64, *time.Time, error) {
	if generationID == "" {
		return 0, nil, nil
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.GradeRecord{}).
		Where("generation_id = ?", generationID).
		Count(&total).Error; err != nil {
		return 0, nil, err
	}
	if total == 0 {
		return 0, nil, nil
	}

	var latest []models.GradeRecord
	if err := r.db.WithContext(ctx).
		Where("generation_id = ?", generationID).
		Order(gradeRecordOrder).
		Limit(1).
		Find(&latest).Error; err != nil {
		return 0, nil, err
	}
	if len(latest) == 0 {
		return total, nil, nil
	}

	createdAt := latest[0].CreatedAt
	return total, &createdAt, nil
}

func (r *gradeRecordRepository) GetByID(ctx context.Context, id string) (models.GradeRecord, error) {
	var record models.GradeRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND generation_id = (?)", id, currentGeneration(r.db.WithContext(ctx))).
		First(&record).Error
	if err != nil {
		return models.GradeRecord{}, err
	}

	return record, nil
}

func (r *gradeRecordRepository) Update(ctx context.Context, id string, mutate func(*models.GradeRecord) error) (models.GradeRecord, error) {
	var record models.GradeRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND generation_id = (?)", id, currentGeneration(tx)).
			First(&record).Error; err != nil {
			return err
		}

		createdAt := record.CreatedAt
		if err := mutate(&record); err != nil {
			return err
		}
		record.ID = id
		record.CreatedAt = createdAt
		record.UpdatedAt = r.now().UTC()

		if err := tx.Save(&record).Error; err != nil {
			return err
		}

		return bumpRevision(tx)
	})
	if err != nil {
		return models.GradeRecord{}, err
	}

	return record, nil
}

func (r *gradeRecordRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND generation_id = (?)", id, currentGeneration(tx)).
			Delete(&models.GradeRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return bumpRevision(tx)
	})
}

func (r *gradeRecordRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func currentGeneration(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).
		Model(&models.DatasetPointer{}).
		Select("generation_id").
		Where("id = ?", models.DatasetPointerID)
}

func bumpRevision(tx *gorm.DB) error {
	return tx.Model(&models.DatasetPointer{}).
		Where("id = ?", models.DatasetPointerID).
		UpdateColumn("revision", gorm.Expr("revision + ?", 1)).Error
}
