package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/grade-roster-api/internal/config"
	"github.com/noah-isme/grade-roster-api/internal/database"
	"github.com/noah-isme/grade-roster-api/internal/dto"
	"github.com/noah-isme/grade-roster-api/internal/handler"
	"github.com/noah-isme/grade-roster-api/internal/ingest"
	"github.com/noah-isme/grade-roster-api/internal/middleware"
	"github.com/noah-isme/grade-roster-api/internal/repository"
	"github.com/noah-isme/grade-roster-api/internal/router"
	"github.com/noah-isme/grade-roster-api/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

func setupRosterApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	repo := repository.NewGradeRecordRepository(db, repository.GradeRecordRepositoryOptions{InsertBatchSize: 2})
	transformer := ingest.NewTransformer(ingest.NewNormalizer(nil), ingest.TransformerOptions{MaxRejectionSamples: 5})
	publisher := service.NewNATSDatasetPublisher(nil, "roster")

	ingestionService := service.NewIngestionService(repo, transformer, publisher, 1, logger)
	recordService := service.NewGradeRecordService(repo, transformer, validate, publisher, nil, service.GradeRecordServiceOptions{MaxLimit: 100}, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, config.Config{AppName: "Test"}, router.Dependencies{
		IngestionHandler:   handler.NewIngestionHandler(ingestionService, logger),
		GradeRecordHandler: handler.NewGradeRecordHandler(recordService, 50, logger),
		Store:              repo,
	})

	return app
}

func upload(t *testing.T, app *fiber.App, fileName string, content []byte) (*http.Response, envelope) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, envelope) {
	t.Helper()

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var payload envelope
	require.NoError(t, json.Unmarshal(data, &payload))
	return resp, payload
}

func listRecords(t *testing.T, app *fiber.App, query string) dto.GradeRecordListResponse {
	t.Helper()

	resp, payload := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/records"+query, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list dto.GradeRecordListResponse
	require.NoError(t, json.Unmarshal(payload.Data, &list))
	return list
}

func workbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, file.SetSheetRow(sheet, cell, &row))
	}

	buf, err := file.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestRosterLifecycle(t *testing.T) {
	app := setupRosterApp(t)

	csv := "Student_ID,Student_Name,Total_Marks,Marks_Obtained\n" +
		"S1,Alice,100,85\n" +
		"S2,Bob,50,10\n" +
		"S3,Cara,0,0\n" +
		"S4,Dan,40,30\n"

	resp, payload := upload(t, app, "term1.csv", []byte(csv))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(middleware.CorrelationHeader))

	var ingested dto.IngestResponse
	require.NoError(t, json.Unmarshal(payload.Data, &ingested))
	require.Equal(t, 3, ingested.InsertedCount)
	require.Equal(t, 1, ingested.RejectedCount)
	require.Equal(t, 4, ingested.TotalRows)
	require.Len(t, ingested.Rejections, 1)
	require.Equal(t, 4, ingested.Rejections[0].Line)

	list := listRecords(t, app, "")
	require.Len(t, list.Items, 3)
	require.Equal(t, []string{"Alice", "Bob", "Dan"}, []string{list.Items[0].Name, list.Items[1].Name, list.Items[2].Name})
	require.Equal(t, 85.0, list.Items[0].Percentage)
	require.Equal(t, 20.0, list.Items[1].Percentage)
	require.Equal(t, 75.0, list.Items[2].Percentage)
	require.Equal(t, 50, list.Pagination.Limit)

	paged := listRecords(t, app, "?page=2&limit=2")
	require.Len(t, paged.Items, 1)
	require.Equal(t, "Dan", paged.Items[0].Name)
	require.Equal(t, 2, paged.Pagination.TotalPages)
	require.True(t, paged.Pagination.HasPrev)

	alice := list.Items[0]
	req := httptest.NewRequest(http.MethodPut, "/api/v1/records/"+alice.ID, strings.NewReader(`{"name":"Alice Smith","total_score":100,"obtained_score":90}`))
	req.Header.Set("Content-Type", "application/json")
	resp, payload = do(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated dto.GradeRecordResponse
	require.NoError(t, json.Unmarshal(payload.Data, &updated))
	require.Equal(t, "Alice Smith", updated.Name)
	require.Equal(t, 90.0, updated.Percentage)
	require.Equal(t, alice.ExternalID, updated.ExternalID)

	resp, payload = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/records/"+alice.ID, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched dto.GradeRecordResponse
	require.NoError(t, json.Unmarshal(payload.Data, &fetched))
	require.Equal(t, 90, fetched.ObtainedScore)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/records/"+alice.ID, strings.NewReader(`{"name":"Alice","total_score":0,"obtained_score":0}`))
	req.Header.Set("Content-Type", "application/json")
	resp, payload = do(t, app, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_input", payload.Code)

	resp, _ = do(t, app, httptest.NewRequest(http.MethodDelete, "/api/v1/records/"+list.Items[1].ID, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, payload = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/records/"+list.Items[1].ID, nil))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", payload.Code)

	resp, payload = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary dto.SummaryResponse
	require.NoError(t, json.Unmarshal(payload.Data, &summary))
	require.Equal(t, int64(2), summary.TotalCount)
	require.NotNil(t, summary.LastUpload)

	resp, payload = do(t, app, httptest.NewRequest(http.MethodDelete, "/api/v1/records", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleared dto.ClearResponse
	require.NoError(t, json.Unmarshal(payload.Data, &cleared))
	require.Equal(t, int64(2), cleared.Removed)

	require.Empty(t, listRecords(t, app, "").Items)

	resp, payload = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(payload.Data, &summary))
	require.Zero(t, summary.TotalCount)
	require.Nil(t, summary.LastUpload)
}

func TestRosterWorkbookUploadReplacesDataset(t *testing.T) {
	app := setupRosterApp(t)

	resp, _ := upload(t, app, "term1.csv", []byte("external_id,name,total_score,obtained_score\nS1,Alice,100,85\nS2,Bob,50,10\n"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	before := listRecords(t, app, "")
	require.Len(t, before.Items, 2)

	content := workbook(t, [][]interface{}{
		{"Student ID", "Student Name", "Total Marks", "Marks Obtained"},
		{"S10", "Zoe", 3, 1},
		{},
		{"S11", "Yan", 3, 2},
	})
	resp, payload := upload(t, app, "term2.xlsx", content)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ingested dto.IngestResponse
	require.NoError(t, json.Unmarshal(payload.Data, &ingested))
	require.Equal(t, 2, ingested.InsertedCount)
	require.Equal(t, 2, ingested.TotalRows)

	after := listRecords(t, app, "")
	require.Len(t, after.Items, 2)
	require.Equal(t, "Zoe", after.Items[0].Name)
	require.Equal(t, 33.33, after.Items[0].Percentage)
	require.Equal(t, 66.67, after.Items[1].Percentage)

	resp, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/records/"+before.Items[0].ID, nil))
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "records of a replaced upload are gone")
}

func TestRosterRejectedUploadKeepsDataset(t *testing.T) {
	app := setupRosterApp(t)

	resp, _ := upload(t, app, "term1.csv", []byte("external_id,name,total_score,obtained_score\nS1,Alice,100,85\n"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, payload := upload(t, app, "bad.csv", []byte("external_id,name,total_score,obtained_score\nS1,,100,85\nS2,Bob,abc,1\n"))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "no_valid_records", payload.Code)

	var report dto.IngestResponse
	require.NoError(t, json.Unmarshal(payload.Data, &report))
	require.Equal(t, 2, report.RejectedCount)
	require.Zero(t, report.InsertedCount)

	resp, payload = upload(t, app, "roster.ods", []byte("data"))
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	require.Equal(t, "unsupported_format", payload.Code)

	list := listRecords(t, app, "")
	require.Len(t, list.Items, 1)
	require.Equal(t, "Alice", list.Items[0].Name)
}
