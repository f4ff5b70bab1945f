package rest

import (
	"fmt"

	"github.com/AzielCF/az-wacloud/inbox/application"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Media struct {
	Fetcher *application.MediaFetcher
}

func InitRestMedia(app fiber.Router, fetcher *application.MediaFetcher) Media {
	rest := Media{Fetcher: fetcher}
	app.Get("/media/:waba_id/:media_id", rest.Download)
	return rest
}

// Download streams inbound media recorded on a chat back to the caller.
func (h *Media) Download(c *fiber.Ctx) error {
	media, err := h.Fetcher.Fetch(c.UserContext(), c.Params("waba_id"), c.Params("media_id"))
	utils.PanicIfNeeded(err)

	if media.Info.MimeType != "" {
		c.Set(fiber.HeaderContentType, media.Info.MimeType)
	}
	if c.QueryBool("download") {
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, media.Info.ID))
	}
	return c.Send(media.Data)
}
