package rest

import (
	"fmt"

	"github.com/AzielCF/az-wacloud/inbox/application"
	chatDomain "github.com/AzielCF/az-wacloud/inbox/domain/chat"
	threadDomain "github.com/AzielCF/az-wacloud/inbox/domain/thread"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type Thread struct {
	Resolver *application.ThreadResolver
	Chats    chatDomain.Store
}

type threadHistory struct {
	Thread *threadDomain.Thread `json:"thread"`
	Chats  []chatDomain.Chat    `json:"chats"`
}

func InitRestThread(app fiber.Router, resolver *application.ThreadResolver, chats chatDomain.Store) Thread {
	rest := Thread{Resolver: resolver, Chats: chats}
	app.Get("/threads/:waba_id/:contact_id", rest.GetThread)
	return rest
}

// GetThread returns the latest thread of a contact with its most recent chats.
func (h *Thread) GetThread(c *fiber.Ctx) error {
	waba, contact := c.Params("waba_id"), c.Params("contact_id")
	utils.SanitizePhone(&contact)

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	th, err := h.Resolver.Resolve(c.UserContext(), waba, contact)
	utils.PanicIfNeeded(err)
	if th == nil {
		utils.PanicIfNeeded(pkgError.NotFoundError(fmt.Sprintf("no thread for %s on %s", contact, waba)))
	}

	chats, err := h.Chats.ListByThread(c.UserContext(), th.ID, limit)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Thread fetched",
		Results: threadHistory{Thread: th, Chats: chats},
	})
}
