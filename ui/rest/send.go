package rest

import (
	"fmt"
	"io"

	"github.com/AzielCF/az-wacloud/inbox/application"
	"github.com/AzielCF/az-wacloud/inbox/domain/outbound"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
)

type Send struct {
	Dispatcher    *application.Dispatcher
	MaxUploadSize int64
}

func InitRestSend(app fiber.Router, dispatcher *application.Dispatcher, maxUploadSize int64) Send {
	rest := Send{Dispatcher: dispatcher, MaxUploadSize: maxUploadSize}
	app.Post("/send/text", rest.SendText)
	app.Post("/send/media", rest.SendMedia)
	app.Post("/send/read", rest.SendReadReceipt)
	return rest
}

func (h *Send) SendText(c *fiber.Ctx) error {
	var request outbound.SendTextRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	res, err := h.Dispatcher.SendText(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Message sent to %s", request.To),
		Results: res,
	})
}

// SendMedia takes a multipart form with the media in the "file" field.
func (h *Send) SendMedia(c *fiber.Ctx) error {
	var request outbound.SendMediaRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	file, err := c.FormFile("file")
	if err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("file: " + err.Error()))
	}
	if h.MaxUploadSize > 0 && file.Size > h.MaxUploadSize {
		utils.PanicIfNeeded(pkgError.ValidationError(fmt.Sprintf("file is %s, the limit is %s",
			humanize.Bytes(uint64(file.Size)), humanize.Bytes(uint64(h.MaxUploadSize)))))
	}

	f, err := file.Open()
	utils.PanicIfNeeded(err)
	defer f.Close()

	request.Data, err = io.ReadAll(f)
	utils.PanicIfNeeded(err)

	if request.Filename == "" {
		request.Filename = file.Filename
	}
	if request.MimeType == "" {
		request.MimeType = file.Header.Get(fiber.HeaderContentType)
	}

	res, err := h.Dispatcher.SendMedia(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Media sent to %s", request.To),
		Results: res,
	})
}

func (h *Send) SendReadReceipt(c *fiber.Ctx) error {
	var request outbound.ReadReceiptRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	res, err := h.Dispatcher.SendReadReceipt(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Read receipt sent",
		Results: res,
	})
}
