package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/glacierlabs/floe/internal/db/models"
)

// JobRepository provides access to job-related database operations
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository instance
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job in the database
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if job.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByJobID retrieves a job by its job identifier
func (r *JobRepository) GetByJobID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("job not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListByUser returns the jobs owned by a user, newest first.
func (r *JobRepository) ListByUser(ctx context.Context, userID string) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("submit_time DESC").
		Find(&jobs).Error
	return jobs, err
}

// ListArchivedByUser returns the user's jobs whose result artifact currently
// lives in cold storage and has no outstanding retrieval request.
func (r *JobRepository) ListArchivedByUser(ctx context.Context, userID string) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND archive_id <> '' AND retrieval_requested = ?", userID, false).
		Find(&jobs).Error
	return jobs, err
}

// FindByArchiveID locates the user's job holding the given archive identifier.
// The retrieval-completion notification carries only the user id and the
// archive id, so this is the correlation contract back to the job record.
// Returns nil when no job matches.
func (r *JobRepository) FindByArchiveID(ctx context.Context, userID, archiveID string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND archive_id = ?", userID, archiveID).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job by archive id: %w", err)
	}
	return &job, nil
}

// MarkRunning performs the conditional PENDING -> RUNNING transition. It
// returns false without error when the job is no longer PENDING, which is
// the expected outcome for a duplicate delivery and must not be treated as
// a failure.
func (r *JobRepository) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ? AND status = ?", jobID, models.JobStatusPending).
		Update("status", models.JobStatusRunning)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark job running: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Finish records the terminal status set by the processing task, along with
// the completion time and the result/log artifact keys. The conditional on
// RUNNING keeps the transition order monotonic under redelivery.
func (r *JobRepository) Finish(ctx context.Context, jobID string, status models.JobStatus, resultKey, logKey string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finish requires a terminal status, got %s", status)
	}
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ? AND status = ?", jobID, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":        status,
			"complete_time": &now,
			"result_key":    resultKey,
			"log_key":       logKey,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to finish job: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetArchiveID records the cold-storage archive identifier on the job.
// Callers must only do this after the cold-storage upload is confirmed.
func (r *JobRepository) SetArchiveID(ctx context.Context, jobID, archiveID string) error {
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Update("archive_id", archiveID).Error
	if err != nil {
		return fmt.Errorf("failed to set archive id: %w", err)
	}
	return nil
}

// MarkRetrievalRequested flags the job as having an outstanding cold-storage
// retrieval so a later orchestration run does not re-request it. Setting an
// already-set flag is a no-op.
func (r *JobRepository) MarkRetrievalRequested(ctx context.Context, jobID string) error {
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Update("retrieval_requested", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark retrieval requested: %w", err)
	}
	return nil
}

// ClearArchive clears the archive id and the retrieval flag once the result
// artifact is confirmed back in hot storage. Clearing already-cleared fields
// is a no-op, so the restore completion handler can safely repeat it.
func (r *JobRepository) ClearArchive(ctx context.Context, jobID string) error {
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"archive_id":          "",
			"retrieval_requested": false,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to clear archive metadata: %w", err)
	}
	return nil
}
