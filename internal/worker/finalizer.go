package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/glacierlabs/floe/internal/db/repos"
	"github.com/glacierlabs/floe/internal/logger"
	"github.com/glacierlabs/floe/internal/notify"
	"github.com/glacierlabs/floe/internal/queue"
	"github.com/glacierlabs/floe/internal/storage"
)

// FinalizerOptions configures a Finalizer.
type FinalizerOptions struct {
	MaxMessages int
	WaitTime    time.Duration
}

// Finalizer consumes retrieval-completion notifications: it copies the
// retrieved artifact back to hot storage, deletes the cold archive, and
// clears the archive metadata on the job record.
//
// Mirror of the archiver's ordering invariant: the cold archive is deleted
// only after the hot copy is confirmed present, so the only durable copy is
// never removed before its replacement exists.
type Finalizer struct {
	queue queue.Queue
	jobs  *repos.JobRepository
	hot   storage.ObjectStore
	vault storage.Vault
	opts  FinalizerOptions
}

// NewFinalizer creates a restore completion handler.
func NewFinalizer(q queue.Queue, jobs *repos.JobRepository, hot storage.ObjectStore, vault storage.Vault, opts FinalizerOptions) *Finalizer {
	return &Finalizer{queue: q, jobs: jobs, hot: hot, vault: vault, opts: opts}
}

// Poll performs one bounded receive pass over the restore-completion queue.
func (f *Finalizer) Poll(ctx context.Context) error {
	deliveries, err := f.queue.Receive(ctx, f.opts.MaxMessages, f.opts.WaitTime)
	if err != nil {
		return fmt.Errorf("failed to receive retrieval completions: %w", err)
	}
	for _, d := range deliveries {
		f.handle(ctx, d)
	}
	return nil
}

func (f *Finalizer) handle(ctx context.Context, d queue.Delivery) {
	env, err := notify.DecodeEnvelope(d.Body)
	if err != nil {
		logger.Errorf("Dropping undecodable retrieval completion %s: %v", d.ID, err)
		f.remove(ctx, d)
		return
	}
	if env.Type == notify.TypeSubscriptionConfirmation {
		f.remove(ctx, d)
		return
	}

	var rc notify.RetrievalCompletion
	if err := env.Payload(&rc); err != nil {
		logger.Errorf("Dropping malformed retrieval completion %s: %v", d.ID, err)
		f.remove(ctx, d)
		return
	}

	if err := f.finalize(ctx, rc); err != nil {
		// The archive and metadata are left intact; every step is
		// repeatable on redelivery without duplicating side effects.
		logger.Errorf("Failed to finalize restore of archive %s, leaving for redelivery: %v", rc.ArchiveID, err)
		return
	}
	f.remove(ctx, d)
}

// finalize restores one retrieved archive. The notification carries only
// storage-tier identifiers plus the owning user id, so the job record is
// found through the user's archived-jobs index by archive id.
func (f *Finalizer) finalize(ctx context.Context, rc notify.RetrievalCompletion) error {
	userID := rc.JobDescription

	job, err := f.jobs.FindByArchiveID(ctx, userID, rc.ArchiveID)
	if err != nil {
		return err
	}
	if job == nil {
		// No job references this archive anymore: a duplicate notification
		// after a completed restoration. Deleting the (already absent)
		// archive is a no-op.
		logger.Infof("No job references archive %s for user %s, assuming already restored", rc.ArchiveID, userID)
		return f.vault.DeleteArchive(ctx, rc.ArchiveID)
	}

	exists, err := f.hot.Exists(ctx, job.ResultBucket, job.ResultKey)
	if err != nil {
		return err
	}
	if exists {
		logger.Infof("Hot copy for job %s already present, skipping copy", job.JobID)
	} else {
		body, err := f.vault.JobOutput(ctx, rc.JobID)
		if err != nil {
			return fmt.Errorf("failed to fetch retrieval output %s: %w", rc.JobID, err)
		}
		if err := f.hot.Put(ctx, job.ResultBucket, job.ResultKey, body); err != nil {
			return fmt.Errorf("failed to restore result of job %s: %w", job.JobID, err)
		}
	}

	// Never delete the only durable copy before the replacement is
	// confirmed.
	restored, err := f.hot.Exists(ctx, job.ResultBucket, job.ResultKey)
	if err != nil {
		return err
	}
	if !restored {
		return fmt.Errorf("hot copy for job %s not confirmed, keeping archive %s", job.JobID, rc.ArchiveID)
	}

	if err := f.vault.DeleteArchive(ctx, rc.ArchiveID); err != nil {
		return fmt.Errorf("failed to delete archive %s: %w", rc.ArchiveID, err)
	}
	if err := f.jobs.ClearArchive(ctx, job.JobID); err != nil {
		return err
	}

	logger.InfoWithFields("Restored job result", map[string]interface{}{
		"job_id":     job.JobID,
		"archive_id": rc.ArchiveID,
	})
	return nil
}

func (f *Finalizer) remove(ctx context.Context, d queue.Delivery) {
	if err := f.queue.Delete(ctx, d.ReceiptHandle); err != nil {
		logger.Errorf("Failed to delete retrieval completion message %s: %v", d.ID, err)
	}
}
