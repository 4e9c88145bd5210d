package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glacierlabs/floe/internal/logger"
	"github.com/glacierlabs/floe/internal/notify"
)

// Default vault tuning
const (
	// DefaultExpeditedCapacity is the number of concurrently in-flight
	// expedited retrievals before the class reports capacity exhaustion
	DefaultExpeditedCapacity = 4
	// DefaultExpeditedDelay approximates the expedited retrieval latency
	DefaultExpeditedDelay = 5 * time.Second
	// DefaultStandardDelay approximates the standard retrieval latency
	DefaultStandardDelay = 30 * time.Second
)

// VaultOptions configures an FSVault.
type VaultOptions struct {
	Root string
	Name string

	// ExpeditedCapacity caps in-flight expedited retrievals. Exceeding it
	// yields ErrInsufficientCapacity.
	ExpeditedCapacity int
	ExpeditedDelay    time.Duration
	StandardDelay     time.Duration

	// Completions, when set, receives a RetrievalCompletion notification as
	// each retrieval job becomes ready.
	Completions *notify.Topic
}

// FSVault is a filesystem-backed Vault. Archives live as flat files keyed by
// archive id; retrieval jobs are tracked in memory and complete after a
// class-dependent delay, at which point the completion topic is notified.
//
// Retrieval state does not survive a process restart: pending retrieval
// jobs are lost and their completions never fire, leaving the affected
// jobs flagged with an outstanding retrieval request until re-requested.
type FSVault struct {
	root string
	name string
	opts VaultOptions

	mu                sync.Mutex
	retrievals        map[string]*retrievalJob
	expeditedInFlight int
}

type retrievalJob struct {
	archiveID   string
	description string
	class       RetrievalClass
	ready       bool
}

// NewFSVault creates a vault rooted at opts.Root.
func NewFSVault(opts VaultOptions) (*FSVault, error) {
	if opts.Name == "" {
		opts.Name = "floe-archive"
	}
	if opts.ExpeditedCapacity == 0 {
		opts.ExpeditedCapacity = DefaultExpeditedCapacity
	}
	if opts.ExpeditedDelay == 0 {
		opts.ExpeditedDelay = DefaultExpeditedDelay
	}
	if opts.StandardDelay == 0 {
		opts.StandardDelay = DefaultStandardDelay
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return &FSVault{
		root:       opts.Root,
		name:       opts.Name,
		opts:       opts,
		retrievals: make(map[string]*retrievalJob),
	}, nil
}

// ARN returns the vault's identifier as carried in notifications.
func (v *FSVault) ARN() string {
	return "arn:floe:vault:" + v.name
}

// Upload stores a new archive and returns its archive id.
func (v *FSVault) Upload(_ context.Context, body []byte) (string, error) {
	archiveID := uuid.NewString()
	if err := os.WriteFile(v.archivePath(archiveID), body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	return archiveID, nil
}

// InitiateRetrieval starts an asynchronous retrieval of an archive.
// Expedited retrievals beyond the configured capacity fail with
// ErrInsufficientCapacity; the caller decides whether to fall back.
func (v *FSVault) InitiateRetrieval(_ context.Context, archiveID, description string, class RetrievalClass) (string, error) {
	if _, err := os.Stat(v.archivePath(archiveID)); os.IsNotExist(err) {
		return "", fmt.Errorf("archive %s: %w", archiveID, ErrNotFound)
	}

	delay := v.opts.StandardDelay
	if class == ClassExpedited {
		v.mu.Lock()
		if v.expeditedInFlight >= v.opts.ExpeditedCapacity {
			v.mu.Unlock()
			return "", fmt.Errorf("expedited retrieval of %s: %w", archiveID, ErrInsufficientCapacity)
		}
		v.expeditedInFlight++
		v.mu.Unlock()
		delay = v.opts.ExpeditedDelay
	}

	jobID := uuid.NewString()
	job := &retrievalJob{archiveID: archiveID, description: description, class: class}
	v.mu.Lock()
	v.retrievals[jobID] = job
	v.mu.Unlock()

	time.AfterFunc(delay, func() { v.completeRetrieval(jobID, job) })
	return jobID, nil
}

func (v *FSVault) completeRetrieval(jobID string, job *retrievalJob) {
	v.mu.Lock()
	if job.ready {
		v.mu.Unlock()
		return
	}
	job.ready = true
	if job.class == ClassExpedited {
		v.expeditedInFlight--
	}
	v.mu.Unlock()

	if v.opts.Completions == nil {
		return
	}
	err := v.opts.Completions.Publish(context.Background(), notify.RetrievalCompletion{
		ArchiveID:      job.archiveID,
		VaultARN:       v.ARN(),
		JobID:          jobID,
		JobDescription: job.description,
	})
	if err != nil {
		logger.Errorf("Failed to publish retrieval completion for %s: %v", jobID, err)
	}
}

// JobOutput returns the retrieved bytes of a finished retrieval job.
func (v *FSVault) JobOutput(_ context.Context, retrievalJobID string) ([]byte, error) {
	v.mu.Lock()
	job, ok := v.retrievals[retrievalJobID]
	v.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("retrieval job %s: %w", retrievalJobID, ErrNotFound)
	}
	if !job.ready {
		return nil, fmt.Errorf("retrieval job %s: %w", retrievalJobID, ErrRetrievalNotReady)
	}

	body, err := os.ReadFile(v.archivePath(job.archiveID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("archive %s: %w", job.archiveID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", job.archiveID, err)
	}
	return body, nil
}

// DeleteArchive removes an archive. Deleting an absent archive is a no-op.
func (v *FSVault) DeleteArchive(_ context.Context, archiveID string) error {
	err := os.Remove(v.archivePath(archiveID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive %s: %w", archiveID, err)
	}
	return nil
}

// CompleteNow forces a pending retrieval job to ready without waiting for
// its delay. Intended for tests.
func (v *FSVault) CompleteNow(retrievalJobID string) {
	v.mu.Lock()
	job, ok := v.retrievals[retrievalJobID]
	v.mu.Unlock()
	if ok && !job.ready {
		v.completeRetrieval(retrievalJobID, job)
	}
}

func (v *FSVault) archivePath(archiveID string) string {
	return filepath.Join(v.root, archiveID)
}
