// Package routes wires the HTTP surface of the service.
package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/glacierlabs/floe/internal/api/handlers"
)

// Register registers all routes on the app.
func Register(app *fiber.App, jobs *handlers.JobHandler, webhooks *handlers.WebhookHandler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	// Notification webhooks
	app.Post("/archive", webhooks.Archive)
	app.Post("/thaw", webhooks.Thaw)

	// Job operations
	v1 := app.Group("/api/v1")
	v1.Post("/jobs", jobs.SubmitJob)
	v1.Get("/jobs", jobs.ListJobs)
	v1.Get("/jobs/:job_id", jobs.GetJob)
	v1.Post("/jobs/:job_id/complete", jobs.CompleteJob)
}
