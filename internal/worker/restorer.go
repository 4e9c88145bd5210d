package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/glacierlabs/floe/internal/db/models"
	"github.com/glacierlabs/floe/internal/db/repos"
	"github.com/glacierlabs/floe/internal/faults"
	"github.com/glacierlabs/floe/internal/logger"
	"github.com/glacierlabs/floe/internal/notify"
	"github.com/glacierlabs/floe/internal/queue"
	"github.com/glacierlabs/floe/internal/storage"
)

// RestorerOptions configures a Restorer.
type RestorerOptions struct {
	MaxMessages int
	WaitTime    time.Duration
}

// Restorer reacts to tier-upgrade events: it scans the user's archived jobs
// and initiates cold-storage retrieval for each, falling back from the
// expedited to the standard class when capacity is exhausted.
type Restorer struct {
	queue queue.Queue
	bus   *notify.Bus
	jobs  *repos.JobRepository
	vault storage.Vault
	opts  RestorerOptions
}

// NewRestorer creates a restore orchestrator.
func NewRestorer(q queue.Queue, bus *notify.Bus, jobs *repos.JobRepository, vault storage.Vault, opts RestorerOptions) *Restorer {
	return &Restorer{queue: q, bus: bus, jobs: jobs, vault: vault, opts: opts}
}

// Poll performs one bounded receive pass over the tier-upgrade queue.
func (r *Restorer) Poll(ctx context.Context) error {
	deliveries, err := r.queue.Receive(ctx, r.opts.MaxMessages, r.opts.WaitTime)
	if err != nil {
		return fmt.Errorf("failed to receive tier upgrades: %w", err)
	}
	for _, d := range deliveries {
		r.handle(ctx, d)
	}
	return nil
}

func (r *Restorer) handle(ctx context.Context, d queue.Delivery) {
	env, err := notify.DecodeEnvelope(d.Body)
	if err != nil {
		logger.Errorf("Dropping undecodable tier upgrade %s: %v", d.ID, err)
		r.remove(ctx, d)
		return
	}

	if env.Type == notify.TypeSubscriptionConfirmation {
		if err := r.bus.ConfirmSubscription(ctx, env.TopicArn, env.Token); err != nil {
			logger.Errorf("Failed to confirm subscription for %s: %v", env.TopicArn, err)
			return
		}
		r.remove(ctx, d)
		return
	}

	var up notify.TierUpgrade
	if err := env.Payload(&up); err != nil {
		logger.Errorf("Dropping malformed tier upgrade %s: %v", d.ID, err)
		r.remove(ctx, d)
		return
	}

	if err := r.Restore(ctx, up.UserID); err != nil {
		logger.Errorf("Failed to orchestrate restore for user %s, leaving for redelivery: %v", up.UserID, err)
		return
	}
	r.remove(ctx, d)
}

// Restore initiates retrieval for every archived job of the user that has
// no outstanding retrieval request. One job's retrieval fault does not
// block the others.
func (r *Restorer) Restore(ctx context.Context, userID string) error {
	archived, err := r.jobs.ListArchivedByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list archived jobs for user %s: %w", userID, err)
	}
	if len(archived) == 0 {
		logger.Infof("No files to retrieve for user %s", userID)
		return nil
	}

	for i := range archived {
		job := &archived[i]
		if err := r.requestRetrieval(ctx, job); err != nil {
			logger.ErrorWithFields("Failed to initiate retrieval", map[string]interface{}{
				"job_id":     job.JobID,
				"archive_id": job.ArchiveID,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

// requestRetrieval tries the expedited class first and falls back to
// standard only on the capacity-exhaustion condition. On success it marks
// the retrieval as outstanding so a second orchestration run does not
// re-request it.
func (r *Restorer) requestRetrieval(ctx context.Context, job *models.Job) error {
	class := storage.ClassExpedited
	_, err := r.vault.InitiateRetrieval(ctx, job.ArchiveID, job.UserID, class)
	if err != nil && faults.Classify(err) == faults.Capacity {
		logger.Warnf("Expedited retrieval for job %s hit capacity, falling back to standard", job.JobID)
		class = storage.ClassStandard
		_, err = r.vault.InitiateRetrieval(ctx, job.ArchiveID, job.UserID, class)
	}
	if err != nil {
		return err
	}

	logger.InfoWithFields("Retrieval initiated", map[string]interface{}{
		"job_id": job.JobID,
		"class":  string(class),
	})
	return r.jobs.MarkRetrievalRequested(ctx, job.JobID)
}

func (r *Restorer) remove(ctx context.Context, d queue.Delivery) {
	if err := r.queue.Delete(ctx, d.ReceiptHandle); err != nil {
		logger.Errorf("Failed to delete tier upgrade message %s: %v", d.ID, err)
	}
}
