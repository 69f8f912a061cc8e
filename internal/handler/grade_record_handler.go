package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/grade-roster-api/internal/dto"
	"github.com/noah-isme/grade-roster-api/internal/service"
	"github.com/noah-isme/grade-roster-api/internal/utils"
)

const defaultPageLimit = 50

// GradeRecordHandler exposes read and edit endpoints for the current roster.
type GradeRecordHandler struct {
	service      service.GradeRecordService
	defaultLimit int
	logger       zerolog.Logger
}

// NewGradeRecordHandler constructs the handler. defaultLimit applies when the
// request omits the limit parameter.
func NewGradeRecordHandler(service service.GradeRecordService, defaultLimit int, logger zerolog.Logger) *GradeRecordHandler {
	if defaultLimit <= 0 {
		defaultLimit = defaultPageLimit
	}

	return &GradeRecordHandler{
		service:      service,
		defaultLimit: defaultLimit,
		logger:       logger.With().Str("component", "grade_record_handler").Logger(),
	}
}

// Register attaches record routes to the router group.
func (h *GradeRecordHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Delete("", h.clear)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
}

// RegisterSummary attaches the dataset summary route.
func (h *GradeRecordHandler) RegisterSummary(router fiber.Router) {
	router.Get("", h.summary)
}

func (h *GradeRecordHandler) list(c *fiber.Ctx) error {
	page, present, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, string(service.KindInvalidInput), "invalid page", nil)
	}
	if !present {
		page = 1
	}

	limit, present, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, string(service.KindInvalidInput), "invalid limit", nil)
	}
	if !present {
		limit = h.defaultLimit
	}

	response, err := h.service.List(c.UserContext(), page, limit)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to list grade records", nil)
	}

	return utils.SendSuccess(c, "grade records retrieved", response)
}

func (h *GradeRecordHandler) get(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	record, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to fetch grade record", nil)
	}

	return utils.SendSuccess(c, "grade record retrieved", record)
}

func (h *GradeRecordHandler) update(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	var payload dto.GradeRecordUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorWithCode(c, fiber.StatusBadRequest, string(service.KindInvalidInput), "invalid payload", nil)
	}

	record, err := h.service.Update(c.UserContext(), id, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to update grade record", nil)
	}

	return utils.SendSuccess(c, "grade record updated", record)
}

func (h *GradeRecordHandler) delete(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to delete grade record", nil)
	}

	return utils.SendSuccess(c, "grade record deleted", fiber.Map{"id": id})
}

func (h *GradeRecordHandler) clear(c *fiber.Ctx) error {
	result, err := h.service.ClearAll(c.UserContext())
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to clear grade records", nil)
	}

	requestLogger(h.logger, c).Info().Int64("removed", result.Removed).Msg("roster cleared")
	return utils.SendSuccess(c, "grade records cleared", result)
}

func (h *GradeRecordHandler) summary(c *fiber.Ctx) error {
	summary, err := h.service.Summary(c.UserContext())
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err, "failed to load summary", nil)
	}

	return utils.SendSuccess(c, "summary retrieved", summary)
}
