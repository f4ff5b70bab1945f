package rest

import (
	"github.com/AzielCF/az-wacloud/pkg/msgworker"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type WorkerPool struct {
	Pool *msgworker.Pool
}

func InitRestWorkerPool(app fiber.Router, pool *msgworker.Pool) WorkerPool {
	rest := WorkerPool{Pool: pool}
	app.Get("/system/workers", rest.GetStats)
	return rest
}

// GetStats returns real-time webhook worker pool statistics.
func (h *WorkerPool) GetStats(c *fiber.Ctx) error {
	if h.Pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "UNAVAILABLE",
			Message: "webhook worker pool not initialized",
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Worker pool stats",
		Results: h.Pool.Stats(),
	})
}
