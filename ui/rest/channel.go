package rest

import (
	"errors"

	"github.com/AzielCF/az-wacloud/inbox/application"
	channelDomain "github.com/AzielCF/az-wacloud/inbox/domain/channel"
	"github.com/AzielCF/az-wacloud/inbox/usecase"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Channel struct {
	Service   *usecase.ChannelService
	Directory *application.Directory
}

func InitRestChannel(app fiber.Router, service *usecase.ChannelService, directory *application.Directory) Channel {
	rest := Channel{Service: service, Directory: directory}
	app.Get("/channels", rest.ListChannels)
	app.Post("/channels", rest.CreateChannel)
	app.Get("/channels/:id", rest.GetChannel)
	app.Delete("/channels/:id", rest.DeleteChannel)
	app.Post("/channels/:id/wa-configs", rest.AddWaConfig)
	app.Delete("/channels/:id/wa-configs/:waba_id", rest.RemoveWaConfig)
	app.Post("/channels/:id/wa-configs/:waba_id/active", rest.SetWaConfigActive)
	app.Get("/channels/:id/participants/:participant_id/wa-configs", rest.ParticipantWaConfigs)
	return rest
}

func (h *Channel) ListChannels(c *fiber.Ctx) error {
	channels, err := h.Service.ListChannels(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Channels fetched",
		Results: channels,
	})
}

func (h *Channel) CreateChannel(c *fiber.Ctx) error {
	var request channelDomain.CreateChannelRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	ch, err := h.Service.CreateChannel(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  fiber.StatusCreated,
		Code:    "SUCCESS",
		Message: "Channel created",
		Results: ch,
	})
}

func (h *Channel) GetChannel(c *fiber.Ctx) error {
	ch, err := h.Service.GetChannel(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Channel fetched",
		Results: ch,
	})
}

func (h *Channel) DeleteChannel(c *fiber.Ctx) error {
	utils.PanicIfNeeded(h.Service.DeleteChannel(c.UserContext(), c.Params("id")))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Channel deleted",
	})
}

func (h *Channel) AddWaConfig(c *fiber.Ctx) error {
	var request channelDomain.AddWaConfigRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	request.ChannelID = c.Params("id")

	cfg, err := h.Service.AddWaConfig(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "WhatsApp config saved",
		Results: cfg,
	})
}

func (h *Channel) RemoveWaConfig(c *fiber.Ctx) error {
	utils.PanicIfNeeded(h.Service.RemoveWaConfig(c.UserContext(), c.Params("id"), c.Params("waba_id")))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "WhatsApp config removed",
	})
}

func (h *Channel) SetWaConfigActive(c *fiber.Ctx) error {
	var request struct {
		Active bool `json:"active"`
	}
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	cfg, err := h.Service.SetWaConfigActive(c.UserContext(), c.Params("id"), c.Params("waba_id"), request.Active)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "WhatsApp config updated",
		Results: cfg,
	})
}

func (h *Channel) ParticipantWaConfigs(c *fiber.Ctx) error {
	configs, err := h.Directory.ResolveByParticipant(c.UserContext(), c.Params("id"), c.Params("participant_id"))
	if errors.Is(err, channelDomain.ErrNotFound) {
		err = pkgError.NotFoundError(err.Error())
	}
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "WhatsApp configs fetched",
		Results: configs,
	})
}
