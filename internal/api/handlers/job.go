package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/glacierlabs/floe/internal/db/models"
	"github.com/glacierlabs/floe/internal/db/repos"
	"github.com/glacierlabs/floe/internal/notify"
)

// JobHandler handles HTTP requests for job operations
type JobHandler struct {
	jobs          *repos.JobRepository
	requests      *notify.Topic
	results       *notify.Topic
	inputsBucket  string
	resultsBucket string
}

// NewJobHandler creates a new job handler instance
func NewJobHandler(jobs *repos.JobRepository, requests, results *notify.Topic, inputsBucket, resultsBucket string) *JobHandler {
	return &JobHandler{
		jobs:          jobs,
		requests:      requests,
		results:       results,
		inputsBucket:  inputsBucket,
		resultsBucket: resultsBucket,
	}
}

// SubmitRequest is the payload for job submission. The input artifact is
// expected to already exist in the hot inputs bucket under InputKey.
type SubmitRequest struct {
	UserID        string `json:"user_id"`
	InputFileName string `json:"input_file_name"`
	InputKey      string `json:"s3_key_input_file"`
}

// SubmitJob creates the PENDING job record and publishes the job-request
// notification that drives the consumer.
func (h *JobHandler) SubmitJob(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	if req.UserID == "" || req.InputFileName == "" || req.InputKey == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("user_id, input_file_name and s3_key_input_file are required"))
	}

	jobID := uuid.NewString()
	job := &models.Job{
		JobID:         jobID,
		UserID:        req.UserID,
		InputFileName: req.InputFileName,
		InputBucket:   h.inputsBucket,
		InputKey:      req.InputKey,
		ResultBucket:  h.resultsBucket,
		SubmitTime:    time.Now().UTC(),
		Status:        models.JobStatusPending,
	}
	if err := h.jobs.Create(c.Context(), job); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}

	err := h.requests.Publish(c.Context(), notify.JobRequest{
		JobID:         jobID,
		UserID:        req.UserID,
		InputFileName: req.InputFileName,
		InputBucket:   h.inputsBucket,
		InputKey:      req.InputKey,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}

	return c.Status(fiber.StatusCreated).JSON(Response{
		Slug: SuccessSlug,
		Data: job,
	})
}

// GetJob handles the request to get a job by its job id
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("invalid job id"))
	}

	job, err := h.jobs.GetByJobID(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errServer(err.Error()))
	}
	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: job,
	})
}

// ListJobs handles the request to list a user's jobs
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("user_id is required"))
	}

	jobs, err := h.jobs.ListByUser(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: jobs,
	})
}

// CompleteRequest is the terminal-status callback payload reported by the
// external processing task.
type CompleteRequest struct {
	Status    string `json:"job_status"`
	ResultKey string `json:"s3_key_result_file"`
	LogKey    string `json:"s3_key_log_file"`
}

// CompleteJob records the terminal status reported by the processing task
// and publishes the job-result notification that drives the archival
// decision.
func (h *JobHandler) CompleteJob(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("invalid job id"))
	}

	var req CompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}
	status, err := models.ParseJobStatus(req.Status)
	if err != nil || !status.Terminal() {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("job_status must be COMPLETED or FAILED"))
	}

	advanced, err := h.jobs.Finish(c.Context(), jobID, status, req.ResultKey, req.LogKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
	}
	if !advanced {
		// Already terminal, or never claimed: report success so the task's
		// retry loop stops, without regressing the status.
		return c.JSON(Response{Slug: SuccessSlug, Data: "no transition"})
	}

	if status == models.JobStatusCompleted {
		job, err := h.jobs.GetByJobID(c.Context(), jobID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
		}
		err = h.results.Publish(c.Context(), notify.JobResult{
			JobID:        job.JobID,
			UserID:       job.UserID,
			ResultBucket: job.ResultBucket,
			ResultKey:    job.ResultKey,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(errServer(err.Error()))
		}
	}

	return c.JSON(Response{Slug: SuccessSlug, Data: string(status)})
}
