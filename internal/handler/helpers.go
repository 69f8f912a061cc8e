package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/grade-roster-api/internal/middleware"
	"github.com/noah-isme/grade-roster-api/internal/service"
	"github.com/noah-isme/grade-roster-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, bool, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, true, err
	}
	return parsed, true, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

var kindStatus = map[service.ErrorKind]int{
	service.KindUnsupportedFormat: fiber.StatusUnsupportedMediaType,
	service.KindDecodeError:       fiber.StatusUnprocessableEntity,
	service.KindNoValidRecords:    fiber.StatusUnprocessableEntity,
	service.KindIngestionFailed:   fiber.StatusInternalServerError,
	service.KindInvalidInput:      fiber.StatusBadRequest,
	service.KindNotFound:          fiber.StatusNotFound,
	service.KindStoreUnavailable:  fiber.StatusServiceUnavailable,
	service.KindPayloadTooLarge:   fiber.StatusRequestEntityTooLarge,
}

// sendServiceError renders err using the error envelope. Internal failures are
// logged and reported with fallback instead of the raw error text.
func sendServiceError(c *fiber.Ctx, logger *zerolog.Logger, err error, fallback string, data interface{}) error {
	kind := service.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		logger.Error().Err(err).Msg(fallback)
		return utils.SendErrorWithCode(c, fiber.StatusInternalServerError, string(service.KindInternal), fallback, nil)
	}

	switch kind {
	case service.KindIngestionFailed:
		logger.Error().Err(err).Msg(fallback)
		return utils.SendErrorWithCode(c, status, string(kind), fallback, data)
	case service.KindStoreUnavailable:
		logger.Warn().Err(err).Msg("record store unavailable")
		return utils.SendErrorWithCode(c, status, string(kind), service.ErrStoreUnavailable.Error(), data)
	}

	return utils.SendErrorWithCode(c, status, string(kind), err.Error(), data)
}

func storeUnavailablePayload(err error) interface{} {
	var unavailable *service.StoreUnavailableError
	if errors.As(err, &unavailable) && unavailable.Parsed != nil {
		return unavailable.Parsed
	}
	return nil
}
