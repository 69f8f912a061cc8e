package handler

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/grade-roster-api/internal/dto"
	"github.com/noah-isme/grade-roster-api/internal/service"
	"github.com/noah-isme/grade-roster-api/internal/utils"
)

// IngestionHandler accepts roster spreadsheet uploads.
type IngestionHandler struct {
	service service.IngestionService
	logger  zerolog.Logger
}

// NewIngestionHandler constructs an ingestion handler.
func NewIngestionHandler(service service.IngestionService, logger zerolog.Logger) *IngestionHandler {
	return &IngestionHandler{
		service: service,
		logger:  logger.With().Str("component", "ingestion_handler").Logger(),
	}
}

// Register wires upload routes.
func (h *IngestionHandler) Register(router fiber.Router) {
	router.Post("", h.upload)
}

func (h *IngestionHandler) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, string(service.KindInvalidInput), "file is required", nil)
	}

	src, err := file.Open()
	if err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, string(service.KindInvalidInput), "unable to read uploaded file", nil)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, string(service.KindInvalidInput), "unable to read uploaded file", nil)
	}

	req := dto.IngestRequest{
		FileName: file.Filename,
		Kind:     strings.TrimSpace(c.FormValue("kind")),
		Data:     data,
	}

	logger := requestLogger(h.logger, c)
	result, err := h.service.Ingest(c.UserContext(), req)
	if err != nil {
		var data interface{}
		switch {
		case errors.Is(err, service.ErrStoreUnavailable):
			data = storeUnavailablePayload(err)
		case service.KindOf(err) == service.KindNoValidRecords:
			data = result
		}
		return sendServiceError(c, logger, err, "roster ingestion failed", data)
	}

	logger.Info().
		Str("file", req.FileName).
		Str("generation_id", result.GenerationID).
		Int("inserted", result.InsertedCount).
		Msg("roster uploaded")

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "roster imported", result)
}
