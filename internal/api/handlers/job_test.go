package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/glacierlabs/floe/internal/db/models"
	"github.com/glacierlabs/floe/internal/db/repos"
	"github.com/glacierlabs/floe/internal/notify"
	"github.com/glacierlabs/floe/internal/queue"
)

// countingDrainer records drain passes triggered by webhook notifications.
type countingDrainer struct {
	polls atomic.Int64
}

func (d *countingDrainer) Poll(context.Context) error {
	d.polls.Add(1)
	return nil
}

type HandlerTestSuite struct {
	suite.Suite
	db       *gorm.DB
	jobRepo  *repos.JobRepository
	bus      *notify.Bus
	requests *queue.MemoryQueue
	results  *queue.MemoryQueue
	archiver *countingDrainer
	restorer *countingDrainer
	app      *fiber.App
}

func TestHandlers(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		s.T().Fatal("failed to connect database")
	}
	if err := db.AutoMigrate(&models.Job{}, &models.User{}); err != nil {
		s.T().Fatal("failed to migrate database schema")
	}

	s.db = db
	s.jobRepo = repos.NewJobRepository(db)
	s.bus = notify.NewBus()

	requestsTopic := s.bus.Topic("job-requests")
	s.requests = queue.NewMemoryQueue(time.Minute)
	requestsTopic.AttachQueue(s.requests)

	resultsTopic := s.bus.Topic("job-results")
	s.results = queue.NewMemoryQueue(time.Minute)
	resultsTopic.AttachQueue(s.results)

	s.archiver = &countingDrainer{}
	s.restorer = &countingDrainer{}

	jobs := NewJobHandler(s.jobRepo, requestsTopic, resultsTopic, "floe-inputs", "floe-results")
	webhooks := NewWebhookHandler(s.bus, s.archiver, s.restorer)

	s.app = fiber.New()
	s.app.Post("/archive", webhooks.Archive)
	s.app.Post("/thaw", webhooks.Thaw)
	v1 := s.app.Group("/api/v1")
	v1.Post("/jobs", jobs.SubmitJob)
	v1.Get("/jobs", jobs.ListJobs)
	v1.Get("/jobs/:job_id", jobs.GetJob)
	v1.Post("/jobs/:job_id/complete", jobs.CompleteJob)
}

func (s *HandlerTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

func (s *HandlerTestSuite) postJSON(path string, payload interface{}) *http.Response {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlerTestSuite) decodeResponse(resp *http.Response) Response {
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	var out Response
	s.Require().NoError(json.Unmarshal(body, &out))
	return out
}

func (s *HandlerTestSuite) submitJob(userID string) string {
	resp := s.postJSON("/api/v1/jobs", SubmitRequest{
		UserID:        userID,
		InputFileName: "sample.vcf",
		InputKey:      userID + "/sample.vcf",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	out := s.decodeResponse(resp)
	s.Require().Equal(SuccessSlug, out.Slug)
	data := out.Data.(map[string]interface{})
	return data["job_id"].(string)
}

func (s *HandlerTestSuite) TestSubmitJob() {
	jobID := s.submitJob("user-1")

	job, err := s.jobRepo.GetByJobID(context.Background(), jobID)
	s.NoError(err)
	s.Equal(models.JobStatusPending, job.Status)
	s.Equal("floe-inputs", job.InputBucket)
	s.Equal("floe-results", job.ResultBucket)

	// The job-request notification went out
	deliveries, err := s.requests.Receive(context.Background(), 1, 100*time.Millisecond)
	s.NoError(err)
	s.Require().Len(deliveries, 1)

	env, err := notify.DecodeEnvelope(deliveries[0].Body)
	s.NoError(err)
	var req notify.JobRequest
	s.NoError(env.Payload(&req))
	s.Equal(jobID, req.JobID)
	s.Equal("user-1", req.UserID)
}

func (s *HandlerTestSuite) TestSubmitJobRejectsMissingFields() {
	resp := s.postJSON("/api/v1/jobs", SubmitRequest{UserID: "user-1"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(0, s.requests.Len())
}

func (s *HandlerTestSuite) TestGetJob() {
	jobID := s.submitJob("user-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID, nil)
	resp, err := s.app.Test(req)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)

	out := s.decodeResponse(resp)
	s.Equal(SuccessSlug, out.Slug)
	data := out.Data.(map[string]interface{})
	s.Equal(jobID, data["job_id"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	resp, err = s.app.Test(req)
	s.Require().NoError(err)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HandlerTestSuite) TestListJobs() {
	s.submitJob("user-1")
	s.submitJob("user-1")
	s.submitJob("user-2")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?user_id=user-1", nil)
	resp, err := s.app.Test(req)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)

	out := s.decodeResponse(resp)
	jobs := out.Data.([]interface{})
	s.Len(jobs, 2)

	// user_id is required
	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	resp, err = s.app.Test(req)
	s.Require().NoError(err)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerTestSuite) TestCompleteJob() {
	ctx := context.Background()
	jobID := s.submitJob("user-1")
	claimed, err := s.jobRepo.MarkRunning(ctx, jobID)
	s.Require().NoError(err)
	s.Require().True(claimed)

	resp := s.postJSON("/api/v1/jobs/"+jobID+"/complete", CompleteRequest{
		Status:    "COMPLETED",
		ResultKey: "user-1/result.annot.vcf",
		LogKey:    "user-1/result.log",
	})
	s.Equal(http.StatusOK, resp.StatusCode)

	job, err := s.jobRepo.GetByJobID(ctx, jobID)
	s.NoError(err)
	s.Equal(models.JobStatusCompleted, job.Status)
	s.NotNil(job.CompleteTime)

	// The job-result notification went out
	deliveries, err := s.results.Receive(ctx, 1, 100*time.Millisecond)
	s.NoError(err)
	s.Require().Len(deliveries, 1)

	env, err := notify.DecodeEnvelope(deliveries[0].Body)
	s.NoError(err)
	var res notify.JobResult
	s.NoError(env.Payload(&res))
	s.Equal(jobID, res.JobID)
	s.Equal("user-1/result.annot.vcf", res.ResultKey)
}

func (s *HandlerTestSuite) TestCompleteJobFailedPublishesNothing() {
	ctx := context.Background()
	jobID := s.submitJob("user-1")
	_, err := s.jobRepo.MarkRunning(ctx, jobID)
	s.Require().NoError(err)

	resp := s.postJSON("/api/v1/jobs/"+jobID+"/complete", CompleteRequest{Status: "FAILED"})
	s.Equal(http.StatusOK, resp.StatusCode)

	job, err := s.jobRepo.GetByJobID(ctx, jobID)
	s.NoError(err)
	s.Equal(models.JobStatusFailed, job.Status)
	s.Equal(0, s.results.Len(), "failed jobs produce no result notification")
}

func (s *HandlerTestSuite) TestCompleteJobRepeatedIsNoOp() {
	ctx := context.Background()
	jobID := s.submitJob("user-1")
	_, err := s.jobRepo.MarkRunning(ctx, jobID)
	s.Require().NoError(err)

	resp := s.postJSON("/api/v1/jobs/"+jobID+"/complete", CompleteRequest{Status: "COMPLETED"})
	s.Equal(http.StatusOK, resp.StatusCode)

	// A duplicate callback reports success without a second notification
	resp = s.postJSON("/api/v1/jobs/"+jobID+"/complete", CompleteRequest{Status: "COMPLETED"})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1, s.results.Len())
}

func (s *HandlerTestSuite) TestCompleteJobRejectsNonTerminalStatus() {
	jobID := s.submitJob("user-1")

	resp := s.postJSON("/api/v1/jobs/"+jobID+"/complete", CompleteRequest{Status: "RUNNING"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerTestSuite) TestWebhookConfirmsSubscription() {
	topic := s.bus.Topic("job-results")
	resp := s.postJSON("/archive", notify.Envelope{
		Type:     notify.TypeSubscriptionConfirmation,
		TopicArn: topic.ARN(),
		Token:    "token-1",
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(s.bus.Confirmed(topic.ARN()))
	s.Equal(int64(0), s.archiver.polls.Load())
}

func (s *HandlerTestSuite) TestWebhookNotificationTriggersDrain() {
	resp := s.postJSON("/archive", notify.Envelope{
		Type:    notify.TypeNotification,
		Message: "{}",
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(int64(1), s.archiver.polls.Load())
	s.Equal(int64(0), s.restorer.polls.Load())

	resp = s.postJSON("/thaw", notify.Envelope{
		Type:    notify.TypeNotification,
		Message: "{}",
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(int64(1), s.restorer.polls.Load())
}

func (s *HandlerTestSuite) TestWebhookRejectsUnknownEnvelope() {
	resp := s.postJSON("/thaw", notify.Envelope{Type: "Mystery"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}
