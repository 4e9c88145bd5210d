package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glacierlabs/floe/internal/db/repos"
	"github.com/glacierlabs/floe/internal/faults"
	"github.com/glacierlabs/floe/internal/logger"
	"github.com/glacierlabs/floe/internal/notify"
	"github.com/glacierlabs/floe/internal/queue"
	"github.com/glacierlabs/floe/internal/storage"
)

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	DataPath    string
	InputSuffix string
	MaxMessages int
	WaitTime    time.Duration
}

// Consumer dequeues job-request messages, stages the input artifact locally,
// claims the job, and launches the external processing task.
type Consumer struct {
	queue  queue.Queue
	jobs   *repos.JobRepository
	hot    storage.ObjectStore
	runner Runner
	opts   ConsumerOptions
}

// NewConsumer creates a job queue consumer.
func NewConsumer(q queue.Queue, jobs *repos.JobRepository, hot storage.ObjectStore, runner Runner, opts ConsumerOptions) *Consumer {
	return &Consumer{queue: q, jobs: jobs, hot: hot, runner: runner, opts: opts}
}

// Poll performs one bounded receive pass over the job-request queue.
func (c *Consumer) Poll(ctx context.Context) error {
	deliveries, err := c.queue.Receive(ctx, c.opts.MaxMessages, c.opts.WaitTime)
	if err != nil {
		return fmt.Errorf("failed to receive job requests: %w", err)
	}
	for _, d := range deliveries {
		c.handle(ctx, d)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, d queue.Delivery) {
	env, err := notify.DecodeEnvelope(d.Body)
	if err != nil {
		logger.Errorf("Dropping undecodable job request %s: %v", d.ID, err)
		c.remove(ctx, d)
		return
	}
	if env.Type == notify.TypeSubscriptionConfirmation {
		c.remove(ctx, d)
		return
	}

	var req notify.JobRequest
	if err := env.Payload(&req); err != nil {
		logger.Errorf("Dropping malformed job request %s: %v", d.ID, err)
		c.remove(ctx, d)
		return
	}

	err = c.process(ctx, req)
	switch faults.DispositionFor(err) {
	case faults.Consume:
		if err != nil {
			logger.ErrorWithFields("Job request rejected", map[string]interface{}{
				"job_id": req.JobID,
				"error":  err.Error(),
			})
		}
		c.remove(ctx, d)
	case faults.Redeliver:
		// Leave the message; the fault may clear before redelivery.
		logger.Errorf("Failed to process job request %s, leaving for redelivery: %v", req.JobID, err)
	}
}

// process stages the input and dispatches the processing task. The
// conditional PENDING -> RUNNING claim is the idempotency guard: under
// duplicate delivery only one claim succeeds, and only the claimant starts
// the task.
func (c *Consumer) process(ctx context.Context, req notify.JobRequest) error {
	if !strings.HasSuffix(req.InputFileName, c.opts.InputSuffix) {
		return faults.Input("wrong file type for %q: %s required", req.InputFileName, c.opts.InputSuffix)
	}

	dir := filepath.Join(c.opts.DataPath, req.UserID, req.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create working directory for job %s: %w", req.JobID, err)
	}

	inputPath := filepath.Join(dir, req.InputFileName)
	if err := c.hot.Download(ctx, req.InputBucket, req.InputKey, inputPath); err != nil {
		return fmt.Errorf("failed to download input for job %s: %w", req.JobID, err)
	}

	claimed, err := c.jobs.MarkRunning(ctx, req.JobID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another delivery already advanced the job; the lost race is
		// success, not an error.
		logger.Debugf("Job %s already claimed, skipping dispatch", req.JobID)
		return nil
	}

	if err := c.runner.Start(ctx, inputPath, req.JobID); err != nil {
		logger.Errorf("Failed to launch processing task for job %s: %v", req.JobID, err)
	}
	return nil
}

func (c *Consumer) remove(ctx context.Context, d queue.Delivery) {
	if err := c.queue.Delete(ctx, d.ReceiptHandle); err != nil {
		// At-least-once delivery makes a benign reprocessing attempt
		// acceptable; the status guard keeps it a no-op.
		logger.Errorf("Failed to delete job request message %s: %v", d.ID, err)
	}
}
