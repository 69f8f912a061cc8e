package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/grade-roster-api/internal/models"
	"github.com/noah-isme/grade-roster-api/internal/repository"
)

func setupRecordRepository(t *testing.T) repository.GradeRecordRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.DatasetGeneration{}, &models.DatasetPointer{}, &models.GradeRecord{}))

	return repository.NewGradeRecordRepository(db, repository.GradeRecordRepositoryOptions{})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []DatasetEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event DatasetEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []DatasetEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DatasetEvent(nil), p.events...)
}

// stubRecordRepository fails the calls whose error field is set and
// otherwise answers with empty results.
type stubRecordRepository struct {
	pingErr     error
	replaceErr  error
	snapshotErr error
	replaced    []repository.ReplaceInput
}

func (s *stubRecordRepository) Replace(_ context.Context, input repository.ReplaceInput) (repository.ReplaceResult, error) {
	s.replaced = append(s.replaced, input)
	if s.replaceErr != nil {
		return repository.ReplaceResult{}, s.replaceErr
	}
	return repository.ReplaceResult{GenerationID: uuid.NewString(), Inserted: len(input.Records), PublishedAt: time.Now().UTC()}, nil
}

func (s *stubRecordRepository) ClearAll(context.Context) (repository.ReplaceResult, error) {
	return repository.ReplaceResult{}, s.replaceErr
}

func (s *stubRecordRepository) Snapshot(context.Context) (repository.Snapshot, error) {
	return repository.Snapshot{}, s.snapshotErr
}

func (s *stubRecordRepository) List(context.Context, repository.GradeRecordFilter) ([]models.GradeRecord, int64, error) {
	return []models.GradeRecord{}, 0, nil
}

func (s *stubRecordRepository) Summary(context.Context, string) (int64, *time.Time, error) {
	return 0, nil, nil
}

func (s *stubRecordRepository) GetByID(context.Context, string) (models.GradeRecord, error) {
	return models.GradeRecord{}, gorm.ErrRecordNotFound
}

func (s *stubRecordRepository) Update(context.Context, string, func(*models.GradeRecord) error) (models.GradeRecord, error) {
	return models.GradeRecord{}, gorm.ErrRecordNotFound
}

func (s *stubRecordRepository) Delete(context.Context, string) error {
	return gorm.ErrRecordNotFound
}

func (s *stubRecordRepository) Ping(context.Context) error {
	return s.pingErr
}
