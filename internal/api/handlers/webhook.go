package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/glacierlabs/floe/internal/notify"
)

// Drainer performs one bounded consumption pass over a workflow queue.
type Drainer interface {
	Poll(ctx context.Context) error
}

// WebhookHandler accepts pushed notification envelopes on the archive and
// thaw endpoints. A subscription confirmation is acknowledged directly; a
// data notification triggers one drain pass of the corresponding consumer.
type WebhookHandler struct {
	bus      *notify.Bus
	archiver Drainer
	restorer Drainer
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(bus *notify.Bus, archiver, restorer Drainer) *WebhookHandler {
	return &WebhookHandler{bus: bus, archiver: archiver, restorer: restorer}
}

// Archive handles POST /archive.
func (h *WebhookHandler) Archive(c *fiber.Ctx) error {
	return h.handle(c, h.archiver)
}

// Thaw handles POST /thaw.
func (h *WebhookHandler) Thaw(c *fiber.Ctx) error {
	return h.handle(c, h.restorer)
}

func (h *WebhookHandler) handle(c *fiber.Ctx, d Drainer) error {
	env, err := notify.DecodeEnvelope(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}

	switch env.Type {
	case notify.TypeSubscriptionConfirmation:
		if err := h.bus.ConfirmSubscription(c.Context(), env.TopicArn, env.Token); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
		}
		return c.JSON(Response{Slug: SuccessSlug, Data: "subscription confirmed"})

	case notify.TypeNotification:
		if err := d.Poll(c.Context()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
		}
		return c.JSON(Response{Slug: SuccessSlug, Data: "processed"})

	default:
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("unknown envelope type: " + env.Type))
	}
}
