package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/grade-roster-api/internal/dto"
	"github.com/noah-isme/grade-roster-api/internal/ingest"
	"github.com/noah-isme/grade-roster-api/internal/models"
	"github.com/noah-isme/grade-roster-api/internal/observability"
	"github.com/noah-isme/grade-roster-api/internal/repository"
)

// IngestionService decodes roster uploads and replaces the stored dataset.
type IngestionService interface {
	Ingest(ctx context.Context, req dto.IngestRequest) (dto.IngestResponse, error)
}

type ingestionService struct {
	repo        repository.GradeRecordRepository
	transformer *ingest.Transformer
	publisher   DatasetPublisher
	logger      zerolog.Logger
	maxSize     int64
	tracer      trace.Tracer
}

// NewIngestionService constructs the ingestion pipeline.
func NewIngestionService(repo repository.GradeRecordRepository, transformer *ingest.Transformer, publisher DatasetPublisher, maxSizeMB int, logger zerolog.Logger) IngestionService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if transformer == nil {
		transformer = ingest.NewTransformer(nil, ingest.TransformerOptions{})
	}
	if publisher == nil {
		publisher = NewNATSDatasetPublisher(nil, "")
	}

	return &ingestionService{
		repo:        repo,
		transformer: transformer,
		publisher:   publisher,
		logger:      logger.With().Str("component", "ingestion_service").Logger(),
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		tracer:      otel.Tracer("github.com/noah-isme/grade-roster-api/internal/service/ingestion"),
	}
}

func (s *ingestionService) Ingest(ctx context.Context, req dto.IngestRequest) (response dto.IngestResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "roster.ingest")
	defer span.End()

	start := time.Now()
	kindLabel := "unknown"
	defer func() {
		observability.IngestLatency().Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = string(KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetStatus(codes.Ok, "published")
		}
		observability.IngestRuns().WithLabelValues(kindLabel, outcome).Inc()
	}()

	span.SetAttributes(
		attribute.String("roster.file_name", req.FileName),
		attribute.Int("roster.size_bytes", len(req.Data)),
	)

	kind, err := resolveKind(req)
	if err != nil {
		return dto.IngestResponse{}, err
	}
	kindLabel = string(kind)
	span.SetAttributes(attribute.String("roster.kind", kindLabel))

	if int64(len(req.Data)) > s.maxSize {
		return dto.IngestResponse{}, ErrUploadTooLarge
	}

	reader, err := ingest.Open(req.Data, kind)
	if err != nil {
		return dto.IngestResponse{}, err
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("failed to close roster reader")
		}
	}()

	batch, err := s.transformer.Run(ctx, reader)
	observability.IngestRows().WithLabelValues("accepted").Add(float64(len(batch.Candidates)))
	observability.IngestRows().WithLabelValues("rejected").Add(float64(batch.Rejected))
	response = dto.IngestResponse{
		RejectedCount: batch.Rejected,
		TotalRows:     batch.Total,
		Rejections:    batch.Rejections,
		Warnings:      batchWarnings(batch),
	}
	if err != nil {
		if errors.Is(err, ingest.ErrNoValidRecords) {
			s.logger.Info().Str("file", req.FileName).Int("rows", batch.Total).Msg("roster upload had no valid rows")
		}
		return response, err
	}
	span.SetAttributes(
		attribute.Int("roster.rows_total", batch.Total),
		attribute.Int("roster.rows_rejected", batch.Rejected),
	)

	if pingErr := s.repo.Ping(ctx); pingErr != nil {
		s.logger.Error().Err(pingErr).Msg("record store unreachable, returning parsed roster")
		return response, &StoreUnavailableError{Parsed: parsedRoster(batch), Err: pingErr}
	}

	result, err := s.repo.Replace(ctx, repository.ReplaceInput{
		Kind:     string(kind),
		FileName: req.FileName,
		Rejected: batch.Rejected,
		Metadata: map[string]interface{}{
			"total_rows":      batch.Total,
			"missing_columns": fieldKeys(batch.MissingFields),
		},
		Records: candidateRecords(batch.Candidates),
	})
	if err != nil {
		if isConnectionError(err) {
			s.logger.Error().Err(err).Msg("record store went away during replace")
			return response, &StoreUnavailableError{Parsed: parsedRoster(batch), Err: err}
		}
		s.logger.Error().Err(err).Str("file", req.FileName).Msg("roster replace rolled back")
		return response, fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}

	response.GenerationID = result.GenerationID
	response.InsertedCount = result.Inserted

	s.logger.Info().
		Str("generation_id", result.GenerationID).
		Str("file", req.FileName).
		Int("inserted", result.Inserted).
		Int("rejected", batch.Rejected).
		Int64("replaced", result.Removed).
		Msg("roster dataset replaced")

	if pubErr := s.publisher.Publish(ctx, DatasetEvent{
		Type:         DatasetEventReplaced,
		GenerationID: result.GenerationID,
		FileName:     req.FileName,
		Inserted:     result.Inserted,
		Rejected:     batch.Rejected,
		Removed:      result.Removed,
		PublishedAt:  result.PublishedAt,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish dataset event")
	}

	return response, nil
}

func resolveKind(req dto.IngestRequest) (ingest.Kind, error) {
	if strings.TrimSpace(req.Kind) != "" {
		return ingest.ParseKind(req.Kind)
	}
	return ingest.KindFromFileName(req.FileName)
}

func candidateRecords(candidates []ingest.Candidate) []models.GradeRecord {
	records := make([]models.GradeRecord, 0, len(candidates))
	for _, candidate := range candidates {
		record := models.GradeRecord{
			ExternalID: candidate.ExternalID,
			Name:       candidate.Name,
		}
		record.SetScores(candidate.TotalScore, candidate.ObtainedScore)
		records = append(records, record)
	}
	return records
}

func parsedRoster(batch ingest.Batch) *dto.ParsedRoster {
	return &dto.ParsedRoster{
		Records:       batch.Candidates,
		RejectedCount: batch.Rejected,
		TotalRows:     batch.Total,
	}
}

func batchWarnings(batch ingest.Batch) []string {
	warnings := make([]string, 0)
	if len(batch.MissingFields) > 0 {
		warnings = append(warnings, "missing columns: "+strings.Join(fieldKeys(batch.MissingFields), ", "))
	}
	if batch.Rejected > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d rows skipped", batch.Rejected, batch.Total))
	}
	return warnings
}

func fieldKeys(fields []ingest.Field) []string {
	keys := make([]string, 0, len(fields))
	for _, field := range fields {
		keys = append(keys, field.Key())
	}
	return keys
}
