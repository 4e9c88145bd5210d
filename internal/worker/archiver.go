package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glacierlabs/floe/internal/db/models"
	"github.com/glacierlabs/floe/internal/db/repos"
	"github.com/glacierlabs/floe/internal/logger"
	"github.com/glacierlabs/floe/internal/notify"
	"github.com/glacierlabs/floe/internal/queue"
	"github.com/glacierlabs/floe/internal/storage"
)

// ArchiverOptions configures an Archiver.
type ArchiverOptions struct {
	MaxMessages int
	WaitTime    time.Duration
}

// Archiver consumes job-result notifications and migrates free-tier result
// artifacts from hot storage to the cold vault.
//
// Ordering invariant: the hot copy is deleted only after the cold upload is
// durably confirmed and the archive id is recorded, so a failed upload can
// never lose the only copy.
type Archiver struct {
	queue queue.Queue
	bus   *notify.Bus
	jobs  *repos.JobRepository
	users *repos.UserRepository
	hot   storage.ObjectStore
	vault storage.Vault
	opts  ArchiverOptions
}

// NewArchiver creates an archival decision component.
func NewArchiver(q queue.Queue, bus *notify.Bus, jobs *repos.JobRepository, users *repos.UserRepository, hot storage.ObjectStore, vault storage.Vault, opts ArchiverOptions) *Archiver {
	return &Archiver{queue: q, bus: bus, jobs: jobs, users: users, hot: hot, vault: vault, opts: opts}
}

// Poll performs one bounded receive pass over the job-results queue.
func (a *Archiver) Poll(ctx context.Context) error {
	deliveries, err := a.queue.Receive(ctx, a.opts.MaxMessages, a.opts.WaitTime)
	if err != nil {
		return fmt.Errorf("failed to receive job results: %w", err)
	}
	for _, d := range deliveries {
		a.handle(ctx, d)
	}
	return nil
}

func (a *Archiver) handle(ctx context.Context, d queue.Delivery) {
	env, err := notify.DecodeEnvelope(d.Body)
	if err != nil {
		logger.Errorf("Dropping undecodable job result %s: %v", d.ID, err)
		a.remove(ctx, d)
		return
	}

	if env.Type == notify.TypeSubscriptionConfirmation {
		if err := a.bus.ConfirmSubscription(ctx, env.TopicArn, env.Token); err != nil {
			logger.Errorf("Failed to confirm subscription for %s: %v", env.TopicArn, err)
			return
		}
		a.remove(ctx, d)
		return
	}

	var res notify.JobResult
	if err := env.Payload(&res); err != nil {
		logger.Errorf("Dropping malformed job result %s: %v", d.ID, err)
		a.remove(ctx, d)
		return
	}

	if err := a.archive(ctx, res); err != nil {
		// Nothing irreversible has happened yet; redelivery repeats the
		// idempotent check-and-archive sequence.
		logger.Errorf("Failed to archive result of job %s, leaving for redelivery: %v", res.JobID, err)
		return
	}
	a.remove(ctx, d)
}

// archive applies the retention decision for one job result.
func (a *Archiver) archive(ctx context.Context, res notify.JobResult) error {
	tier, err := a.users.GetTier(ctx, res.UserID)
	if err != nil {
		return fmt.Errorf("failed to look up tier for user %s: %w", res.UserID, err)
	}
	if tier != models.TierFree {
		logger.Debugf("Job %s belongs to a %s, skipping archival", res.JobID, tier)
		return nil
	}

	body, err := a.hot.Get(ctx, res.ResultBucket, res.ResultKey)
	if errors.Is(err, storage.ErrNotFound) {
		// Already archived: the result no longer exists in hot storage, so
		// a redelivered notification is skipped harmlessly.
		logger.Infof("Result of job %s absent from hot storage, skipping", res.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read result of job %s: %w", res.JobID, err)
	}
	if len(body) == 0 {
		logger.Infof("Result of job %s is empty, skipping archival", res.JobID)
		return nil
	}

	archiveID, err := a.vault.Upload(ctx, body)
	if err != nil {
		return fmt.Errorf("failed to upload result of job %s to cold storage: %w", res.JobID, err)
	}

	if err := a.jobs.SetArchiveID(ctx, res.JobID, archiveID); err != nil {
		// The hot copy stays untouched; redelivery re-archives.
		return err
	}

	if err := a.hot.Delete(ctx, res.ResultBucket, res.ResultKey); err != nil {
		// The archive and its id are already recorded; a lingering hot copy
		// is harmless.
		logger.Errorf("Failed to delete hot copy of job %s result: %v", res.JobID, err)
	}

	logger.InfoWithFields("Archived job result", map[string]interface{}{
		"job_id":     res.JobID,
		"archive_id": archiveID,
	})
	return nil
}

func (a *Archiver) remove(ctx context.Context, d queue.Delivery) {
	if err := a.queue.Delete(ctx, d.ReceiptHandle); err != nil {
		logger.Errorf("Failed to delete job result message %s: %v", d.ID, err)
	}
}
