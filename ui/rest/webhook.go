package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AzielCF/az-wacloud/inbox/application"
	"github.com/AzielCF/az-wacloud/pkg/msgworker"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Webhook receives WhatsApp Cloud API deliveries. Processing runs on the
// worker pool so the provider gets its acknowledgement right away; every
// delivery that passes the signature check is answered 200.
type Webhook struct {
	Processor *application.Processor
	Pool      *msgworker.Pool
}

func InitRestWebhook(app fiber.Router, processor *application.Processor, pool *msgworker.Pool) Webhook {
	rest := Webhook{Processor: processor, Pool: pool}
	app.Get("/webhook", rest.Verify)
	app.Post("/webhook", rest.Receive)
	return rest
}

func (h *Webhook) Verify(c *fiber.Ctx) error {
	challenge, err := h.Processor.Verify(c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if err != nil {
		logrus.Warnf("[WEBHOOK] Verification rejected from %s", c.IP())
		return c.Status(fiber.StatusForbidden).JSON(utils.ResponseData{
			Status:  fiber.StatusForbidden,
			Code:    "FORBIDDEN",
			Message: err.Error(),
		})
	}
	return c.SendString(challenge)
}

func (h *Webhook) Receive(c *fiber.Ctx) error {
	// fiber reuses the request buffer once the handler returns
	body := append([]byte(nil), c.Body()...)

	if err := h.Processor.VerifySignature(body, c.Get("X-Hub-Signature-256")); err != nil {
		logrus.Warnf("[WEBHOOK] %v from %s", err, c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(utils.ResponseData{
			Status:  fiber.StatusUnauthorized,
			Code:    "UNAUTHORIZED",
			Message: err.Error(),
		})
	}

	process := func(ctx context.Context) error {
		report := h.Processor.ProcessWebhook(ctx, body)
		if !report.Processed {
			return errors.New(report.Rejected)
		}
		for _, out := range report.Outcomes {
			if out.Result == application.ResultFailed {
				return fmt.Errorf("event %d (%s): %s", out.Index, out.Wamid, out.Error)
			}
		}
		return nil
	}

	if h.Pool != nil && h.Pool.TryDispatch(msgworker.Job{Key: deliveryKey(body), Handler: process}) {
		return c.SendString("EVENT_RECEIVED")
	}

	// no pool or a full queue: process on the request. The provider retries
	// any non-2xx, so the delivery is acknowledged either way.
	if h.Pool != nil {
		logrus.Warn("[WEBHOOK] Worker queue full, processing delivery inline")
	}
	if err := process(context.WithoutCancel(c.UserContext())); err != nil {
		logrus.WithError(err).Warn("[WEBHOOK] Delivery processed with errors")
	}
	return c.SendString("EVENT_RECEIVED")
}

// deliveryKey picks the phone number id of the first change so deliveries
// for one number are processed in order.
func deliveryKey(body []byte) string {
	var probe struct {
		Entry []struct {
			Changes []struct {
				Value struct {
					Metadata struct {
						PhoneNumberID string `json:"phone_number_id"`
					} `json:"metadata"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	for _, e := range probe.Entry {
		for _, ch := range e.Changes {
			if id := ch.Value.Metadata.PhoneNumberID; id != "" {
				return id
			}
		}
	}
	return ""
}
