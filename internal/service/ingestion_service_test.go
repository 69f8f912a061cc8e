package service

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grade-roster-api/internal/dto"
	"github.com/noah-isme/grade-roster-api/internal/ingest"
	"github.com/noah-isme/grade-roster-api/internal/repository"
)

const legacyCSV = "Student_ID,Student_Name,Total_Marks,Marks_Obtained\nS1,Alice,100,85\nS2,Bob,50,10\n"

func TestIngestionServiceReplacesDataset(t *testing.T) {
	repo := setupRecordRepository(t)
	publisher := &recordingPublisher{}
	svc := NewIngestionService(repo, nil, publisher, 1, zerolog.Nop())
	ctx := context.Background()

	resp, err := svc.Ingest(ctx, dto.IngestRequest{FileName: "term1.csv", Data: []byte(legacyCSV)})
	require.NoError(t, err)
	require.Equal(t, 2, resp.InsertedCount)
	require.Zero(t, resp.RejectedCount)
	require.Equal(t, 2, resp.TotalRows)
	require.NotEmpty(t, resp.GenerationID)
	require.Empty(t, resp.Warnings)

	snapshot, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, resp.GenerationID, snapshot.GenerationID)

	records, total, err := repo.List(ctx, repository.GradeRecordFilter{GenerationID: snapshot.GenerationID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Equal(t, "Alice", records[0].Name)
	require.Equal(t, 85.00, records[0].Percentage)
	require.Equal(t, "Bob", records[1].Name)
	require.Equal(t, 20.00, records[1].Percentage)

	events := publisher.Events()
	require.Len(t, events, 1)
	require.Equal(t, DatasetEventReplaced, events[0].Type)
	require.Equal(t, resp.GenerationID, events[0].GenerationID)
	require.Equal(t, "term1.csv", events[0].FileName)
	require.Equal(t, 2, events[0].Inserted)

	second, err := svc.Ingest(ctx, dto.IngestRequest{FileName: "term2.csv", Kind: "text/csv", Data: []byte("external_id,name,total_score,obtained_score\nS9,Zed,10,5\n")})
	require.NoError(t, err)
	require.Equal(t, 1, second.InsertedCount)

	_, total, err = repo.List(ctx, repository.GradeRecordFilter{GenerationID: second.GenerationID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total, "second upload fully replaces the first")
}

func TestIngestionServiceReportsPartialRejects(t *testing.T) {
	repo := setupRecordRepository(t)
	svc := NewIngestionService(repo, nil, nil, 1, zerolog.Nop())

	data := "Student_ID,Student_Name,Total_Marks,Marks_Obtained\nS1,Alice,100,85\nS2,Bob,0,0\n,Nobody,10,1\n"

	resp, err := svc.Ingest(context.Background(), dto.IngestRequest{FileName: "mixed.csv", Data: []byte(data)})
	require.NoError(t, err)
	require.Equal(t, 1, resp.InsertedCount)
	require.Equal(t, 2, resp.RejectedCount)
	require.Equal(t, 3, resp.TotalRows)
	require.Equal(t, resp.TotalRows, resp.InsertedCount+resp.RejectedCount)
	require.Len(t, resp.Rejections, 2)
	require.Equal(t, 3, resp.Rejections[0].Line)
	require.Contains(t, resp.Warnings, "2 of 3 rows skipped")
}

func TestIngestionServiceKeepsDatasetWhenNoRowIsValid(t *testing.T) {
	repo := setupRecordRepository(t)
	publisher := &recordingPublisher{}
	svc := NewIngestionService(repo, nil, publisher, 1, zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Ingest(ctx, dto.IngestRequest{FileName: "term1.csv", Data: []byte(legacyCSV)})
	require.NoError(t, err)

	resp, err := svc.Ingest(ctx, dto.IngestRequest{FileName: "bad.csv", Data: []byte("Student_ID,Student_Name,Total_Marks,Marks_Obtained\nS3,Carl,0,0\n")})
	require.ErrorIs(t, err, ingest.ErrNoValidRecords)
	require.Equal(t, KindNoValidRecords, KindOf(err))
	require.Equal(t, 1, resp.RejectedCount)
	require.Equal(t, 1, resp.TotalRows)
	require.Zero(t, resp.InsertedCount)

	snapshot, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, first.GenerationID, snapshot.GenerationID)
	require.Len(t, publisher.Events(), 1)
}

func TestIngestionServiceRejectsBadInput(t *testing.T) {
	workbookAsCSV := []byte("PK\x03\x04")
	workbookAsCSV = append(workbookAsCSV, bytes.Repeat([]byte{0}, 64)...)

	cases := []struct {
		name string
		req  dto.IngestRequest
		kind ErrorKind
	}{
		{name: "unknown extension", req: dto.IngestRequest{FileName: "roster.pdf", Data: []byte("%PDF-1.4")}, kind: KindUnsupportedFormat},
		{name: "unknown declared kind", req: dto.IngestRequest{FileName: "roster.csv", Kind: "ods", Data: []byte(legacyCSV)}, kind: KindUnsupportedFormat},
		{name: "text declared as xlsx", req: dto.IngestRequest{FileName: "roster.xlsx", Data: []byte(legacyCSV)}, kind: KindDecodeError},
		{name: "zip declared as csv", req: dto.IngestRequest{FileName: "roster.csv", Data: workbookAsCSV}, kind: KindDecodeError},
		{name: "header only", req: dto.IngestRequest{FileName: "roster.csv", Data: []byte("Student_ID,Student_Name\n")}, kind: KindDecodeError},
		{name: "too large", req: dto.IngestRequest{FileName: "roster.csv", Data: bytes.Repeat([]byte("a"), 1024*1024+1)}, kind: KindPayloadTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubRecordRepository{}
			svc := NewIngestionService(repo, nil, nil, 1, zerolog.Nop())

			_, err := svc.Ingest(context.Background(), tc.req)
			require.Error(t, err)
			require.Equal(t, tc.kind, KindOf(err))
			require.Empty(t, repo.replaced, "nothing reaches the store")
		})
	}
}

func TestIngestionServiceDegradesWhenStoreIsDown(t *testing.T) {
	repo := &stubRecordRepository{pingErr: fmt.Errorf("dial tcp: %w", driver.ErrBadConn)}
	svc := NewIngestionService(repo, nil, nil, 1, zerolog.Nop())

	resp, err := svc.Ingest(context.Background(), dto.IngestRequest{FileName: "term1.csv", Data: []byte(legacyCSV)})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, KindStoreUnavailable, KindOf(err))
	require.Equal(t, 2, resp.TotalRows)

	var unavailable *StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.NotNil(t, unavailable.Parsed)
	require.Len(t, unavailable.Parsed.Records, 2)
	require.Equal(t, 85.00, unavailable.Parsed.Records[0].Percentage)
	require.Empty(t, repo.replaced)
}

func TestIngestionServiceReplaceFailures(t *testing.T) {
	t.Run("connection lost", func(t *testing.T) {
		repo := &stubRecordRepository{replaceErr: driver.ErrBadConn}
		svc := NewIngestionService(repo, nil, nil, 1, zerolog.Nop())

		_, err := svc.Ingest(context.Background(), dto.IngestRequest{FileName: "term1.csv", Data: []byte(legacyCSV)})
		require.Equal(t, KindStoreUnavailable, KindOf(err))

		var unavailable *StoreUnavailableError
		require.ErrorAs(t, err, &unavailable)
		require.Len(t, unavailable.Parsed.Records, 2)
	})

	t.Run("transaction error", func(t *testing.T) {
		repo := &stubRecordRepository{replaceErr: errors.New("unique constraint failed")}
		publisher := &recordingPublisher{}
		svc := NewIngestionService(repo, nil, publisher, 1, zerolog.Nop())

		_, err := svc.Ingest(context.Background(), dto.IngestRequest{FileName: "term1.csv", Data: []byte(legacyCSV)})
		require.ErrorIs(t, err, ErrIngestionFailed)
		require.Equal(t, KindIngestionFailed, KindOf(err))
		require.Empty(t, publisher.Events())
	})
}

func TestIngestionServiceIgnoresPublishFailure(t *testing.T) {
	repo := setupRecordRepository(t)
	publisher := &recordingPublisher{err: errors.New("nats: connection closed")}
	svc := NewIngestionService(repo, nil, publisher, 1, zerolog.Nop())

	resp, err := svc.Ingest(context.Background(), dto.IngestRequest{FileName: "term1.csv", Data: []byte(legacyCSV)})
	require.NoError(t, err)
	require.Equal(t, 2, resp.InsertedCount)
}
