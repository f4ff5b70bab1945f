package rest

import (
	"context"
	"time"

	"github.com/AzielCF/az-wacloud/infrastructure/valkey"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Health struct {
	DB       *gorm.DB
	Valkey   *valkey.Client
	Settings map[string]any
}

// InitRestHealth registers the liveness probe. vk may be nil when the lock is disabled.
func InitRestHealth(app fiber.Router, db *gorm.DB, vk *valkey.Client, settings map[string]any) Health {
	rest := Health{DB: db, Valkey: vk, Settings: settings}
	app.Get("/system/health", rest.Check)
	return rest
}

func (h *Health) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	database := "ok"
	if sqlDB, err := h.DB.DB(); err != nil {
		database = err.Error()
	} else if err := sqlDB.PingContext(ctx); err != nil {
		database = err.Error()
	}

	cache := "disabled"
	if h.Valkey != nil {
		cache = "ok"
		if err := h.Valkey.Ping(ctx); err != nil {
			cache = err.Error()
		}
	}

	status := fiber.StatusOK
	code := "SUCCESS"
	if database != "ok" {
		status = fiber.StatusServiceUnavailable
		code = "UNHEALTHY"
	}
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    code,
		Message: "Health check",
		Results: fiber.Map{
			"database": database,
			"valkey":   cache,
			"settings": h.Settings,
		},
	})
}
