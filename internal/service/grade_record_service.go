package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/grade-roster-api/internal/dto"
	"github.com/noah-isme/grade-roster-api/internal/ingest"
	"github.com/noah-isme/grade-roster-api/internal/models"
	"github.com/noah-isme/grade-roster-api/internal/observability"
	"github.com/noah-isme/grade-roster-api/internal/repository"
)

const defaultMaxLimit = 500

// GradeRecordService serves paged reads and single-record edits of the current dataset.
type GradeRecordService interface {
	List(ctx context.Context, page, limit int) (dto.GradeRecordListResponse, error)
	Get(ctx context.Context, id string) (dto.GradeRecordResponse, error)
	Update(ctx context.Context, id string, payload dto.GradeRecordUpdateRequest) (dto.GradeRecordResponse, error)
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) (dto.ClearResponse, error)
	Summary(ctx context.Context) (dto.SummaryResponse, error)
}

// GradeRecordServiceOptions tunes caching and page size limits.
type GradeRecordServiceOptions struct {
	CacheTTL time.Duration
	MaxLimit int
}

type gradeRecordService struct {
	repo        repository.GradeRecordRepository
	transformer *ingest.Transformer
	validator   *validator.Validate
	publisher   DatasetPublisher
	cache       *redis.Client
	cacheTTL    time.Duration
	maxLimit    int
	logger      zerolog.Logger
}

// NewGradeRecordService constructs the query service. cache may be nil.
func NewGradeRecordService(repo repository.GradeRecordRepository, transformer *ingest.Transformer, validator *validator.Validate, publisher DatasetPublisher, cache *redis.Client, opts GradeRecordServiceOptions, logger zerolog.Logger) GradeRecordService {
	if transformer == nil {
		transformer = ingest.NewTransformer(nil, ingest.TransformerOptions{})
	}
	if publisher == nil {
		publisher = NewNATSDatasetPublisher(nil, "")
	}
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = defaultMaxLimit
	}

	return &gradeRecordService{
		repo:        repo,
		transformer: transformer,
		validator:   validator,
		publisher:   publisher,
		cache:       cache,
		cacheTTL:    opts.CacheTTL,
		maxLimit:    maxLimit,
		logger:      logger.With().Str("component", "grade_record_service").Logger(),
	}
}

func (s *gradeRecordService) List(ctx context.Context, page, limit int) (dto.GradeRecordListResponse, error) {
	if page < 1 {
		return dto.GradeRecordListResponse{}, fmt.Errorf("%w: page must be at least 1", ErrInvalidInput)
	}
	if limit < 1 {
		return dto.GradeRecordListResponse{}, fmt.Errorf("%w: limit must be at least 1", ErrInvalidInput)
	}
	if limit > s.maxLimit {
		return dto.GradeRecordListResponse{}, fmt.Errorf("%w: limit must not exceed %d", ErrInvalidInput, s.maxLimit)
	}

	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return dto.GradeRecordListResponse{}, classifyStoreError(err)
	}

	cacheKey := fmt.Sprintf("%s:list:%d:%d", snapshotKey(snapshot), page, limit)
	var cached dto.GradeRecordListResponse
	if s.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	records, total, err := s.repo.List(ctx, repository.GradeRecordFilter{
		GenerationID: snapshot.GenerationID,
		Page:         page,
		PageSize:     limit,
	})
	if err != nil {
		return dto.GradeRecordListResponse{}, classifyStoreError(err)
	}

	items := make([]dto.GradeRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.NewGradeRecordResponse(record))
	}

	response := dto.GradeRecordListResponse{
		Items:      items,
		Pagination: paginate(page, limit, total),
	}
	s.writeCache(ctx, cacheKey, response)

	return response, nil
}

func (s *gradeRecordService) Get(ctx context.Context, id string) (dto.GradeRecordResponse, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.GradeRecordResponse{}, classifyStoreError(err)
	}

	return dto.NewGradeRecordResponse(record), nil
}

func (s *gradeRecordService) Update(ctx context.Context, id string, payload dto.GradeRecordUpdateRequest) (dto.GradeRecordResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradeRecordResponse{}, invalidInput(err)
	}

	name, err := s.transformer.CleanName(*payload.Name)
	if err != nil {
		return dto.GradeRecordResponse{}, invalidInput(err)
	}
	total, obtained := *payload.TotalScore, *payload.ObtainedScore
	if err := s.transformer.CheckScores(total, obtained); err != nil {
		return dto.GradeRecordResponse{}, invalidInput(err)
	}

	record, err := s.repo.Update(ctx, id, func(record *models.GradeRecord) error {
		record.Name = name
		record.SetScores(total, obtained)
		return nil
	})
	if err != nil {
		return dto.GradeRecordResponse{}, classifyStoreError(err)
	}

	s.logger.Debug().Str("record_id", id).Float64("percentage", record.Percentage).Msg("grade record updated")
	return dto.NewGradeRecordResponse(record), nil
}

func (s *gradeRecordService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return classifyStoreError(err)
	}

	s.logger.Debug().Str("record_id", id).Msg("grade record deleted")
	return nil
}

func (s *gradeRecordService) ClearAll(ctx context.Context) (dto.ClearResponse, error) {
	result, err := s.repo.ClearAll(ctx)
	if err != nil {
		return dto.ClearResponse{}, classifyStoreError(err)
	}

	s.logger.Info().Str("generation_id", result.GenerationID).Int64("removed", result.Removed).Msg("roster dataset cleared")

	if pubErr := s.publisher.Publish(ctx, DatasetEvent{
		Type:         DatasetEventCleared,
		GenerationID: result.GenerationID,
		Removed:      result.Removed,
		PublishedAt:  result.PublishedAt,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish dataset event")
	}

	return dto.ClearResponse{Removed: result.Removed}, nil
}

func (s *gradeRecordService) Summary(ctx context.Context) (dto.SummaryResponse, error) {
	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return dto.SummaryResponse{}, classifyStoreError(err)
	}

	cacheKey := snapshotKey(snapshot) + ":summary"
	var cached dto.SummaryResponse
	if s.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	total, latest, err := s.repo.Summary(ctx, snapshot.GenerationID)
	if err != nil {
		return dto.SummaryResponse{}, classifyStoreError(err)
	}

	response := dto.SummaryResponse{TotalCount: total, LastUpload: latest}
	s.writeCache(ctx, cacheKey, response)

	return response, nil
}

// snapshotKey scopes cache entries to one generation revision, so edits and
// replaces never need explicit invalidation.
func snapshotKey(snapshot repository.Snapshot) string {
	generation := snapshot.GenerationID
	if generation == "" {
		generation = "none"
	}
	return fmt.Sprintf("roster:%s:%d", generation, snapshot.Revision)
}

func (s *gradeRecordService) readCache(ctx context.Context, key string, target interface{}) bool {
	if s.cache == nil || s.cacheTTL <= 0 {
		return false
	}

	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read record cache")
		}
		observability.CacheLookups().WithLabelValues("miss").Inc()
		return false
	}

	if err := json.Unmarshal([]byte(cached), target); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		observability.CacheLookups().WithLabelValues("miss").Inc()
		return false
	}

	observability.CacheLookups().WithLabelValues("hit").Inc()
	return true
}

func (s *gradeRecordService) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store record cache")
	}
}

func paginate(page, limit int, total int64) dto.PaginationMeta {
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return dto.PaginationMeta{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  total,
		Limit:       limit,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}
