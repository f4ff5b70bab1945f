package middleware

import (
	"errors"
	"fmt"

	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			res := utils.ResponseData{
				Status:  fiber.StatusInternalServerError,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: fmt.Sprintf("%v", r),
			}

			var generic pkgError.GenericError
			if err, ok := r.(error); ok && errors.As(err, &generic) {
				res.Status = generic.StatusCode()
				res.Code = generic.ErrCode()
				res.Message = err.Error()
			}

			if res.Status >= fiber.StatusInternalServerError {
				logrus.Errorf("[REST] %s %s failed: %v", ctx.Method(), ctx.Path(), r)
			}

			// upstream errors keep the provider body verbatim
			var upstream *pkgError.UpstreamError
			if err, ok := r.(error); ok && errors.As(err, &upstream) && upstream.Body != "" {
				res.Results = fiber.Map{"upstream_status": upstream.Status, "upstream_body": upstream.Body}
			}

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
