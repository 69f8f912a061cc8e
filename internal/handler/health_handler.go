package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/grade-roster-api/internal/config"
	"github.com/noah-isme/grade-roster-api/internal/utils"
)

const healthPingTimeout = 2 * time.Second

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Store       string    `json:"store"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
}

// StorePinger reports whether the record store is reachable.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a handler that reports application health information.
// A nil store skips the reachability probe.
func HealthCheck(cfg config.Config, store StorePinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Store:       "unchecked",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), healthPingTimeout)
			defer cancel()

			payload.Store = "up"
			if err := store.Ping(ctx); err != nil {
				payload.Status = "degraded"
				payload.Store = "down"
				return utils.SendSuccessWithStatus(c, fiber.StatusServiceUnavailable, "record store unreachable", payload)
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
