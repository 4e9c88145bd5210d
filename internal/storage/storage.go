// Package storage provides the two artifact tiers: a hot object store with
// immediate reads, and a cold vault whose archives are retrieved
// asynchronously in one of two retrieval classes.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors. ErrInsufficientCapacity is the one condition that
// triggers the expedited-to-standard retrieval fallback; everything else is
// terminal for that retrieval attempt.
var (
	// ErrNotFound indicates the object or archive does not exist
	ErrNotFound = errors.New("storage: object not found")
	// ErrInsufficientCapacity indicates the expedited retrieval class is out
	// of capacity; callers fall back to the standard class
	ErrInsufficientCapacity = errors.New("storage: insufficient retrieval capacity")
	// ErrRetrievalNotReady indicates the retrieval job has not finished yet
	ErrRetrievalNotReady = errors.New("storage: retrieval not ready")
)

// RetrievalClass is the speed tier requested for a cold-storage retrieval.
type RetrievalClass string

// Retrieval classes
const (
	// ClassExpedited retrieves within minutes but may hit capacity limits
	ClassExpedited RetrievalClass = "Expedited"
	// ClassStandard retrieves within hours and is always available
	ClassStandard RetrievalClass = "Standard"
)

// ObjectStore is the hot tier. Objects are addressed by bucket and key.
type ObjectStore interface {
	// Put writes an object.
	Put(ctx context.Context, bucket, key string, body []byte) error

	// Get reads an object fully into memory. Returns ErrNotFound if absent.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Download writes an object to a local file path.
	Download(ctx context.Context, bucket, key, path string) error

	// Delete removes an object. Deleting an absent object is a no-op.
	Delete(ctx context.Context, bucket, key string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Vault is the cold tier. Archives are identified by an opaque archive id
// assigned at upload; reads go through an asynchronous retrieval job.
type Vault interface {
	// Upload stores a new archive and returns its archive id.
	Upload(ctx context.Context, body []byte) (string, error)

	// InitiateRetrieval starts an asynchronous retrieval of an archive at
	// the given class and returns the retrieval job id. The description is
	// carried through to the completion notification.
	InitiateRetrieval(ctx context.Context, archiveID, description string, class RetrievalClass) (string, error)

	// JobOutput returns the retrieved bytes of a finished retrieval job.
	JobOutput(ctx context.Context, retrievalJobID string) ([]byte, error)

	// DeleteArchive removes an archive. Deleting an absent archive is a
	// no-op.
	DeleteArchive(ctx context.Context, archiveID string) error

	// ARN returns the vault's identifier as carried in notifications.
	ARN() string
}
