// Package storage defines the persistence interface for policy
// documents and their stage records.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/civiclens/policyd/internal/models"
)

// ErrNotFound is returned when a document (or stage record) does not
// exist or has been soft-deleted.
var ErrNotFound = errors.New("not found")

// ErrStageRunning is returned by StartStageRun when the stage record
// is already in progress.
var ErrStageRunning = errors.New("stage already in progress")

// ErrStageCompleted is returned by StartStageRun when the stage record
// is completed and force was not set.
var ErrStageCompleted = errors.New("stage already completed")

// ErrStageNotRunning is returned by CompleteStageRun/FailStageRun when
// the stage record is not in progress.
var ErrStageNotRunning = errors.New("stage not in progress")

// DuplicateContentError is returned when a document's content
// fingerprint matches an existing non-deleted document.
type DuplicateContentError struct {
	ExistingID string
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("duplicate content: already stored as %s", e.ExistingID)
}

// Storage defines document and stage record persistence.
//
// CreateDocument must serialize the fingerprint check-and-insert: two
// concurrent creates with the same content hash yield exactly one
// stored row, the loser receiving a *DuplicateContentError.
// StartStageRun must atomically test-and-set the stage record status
// so two concurrent runs of the same stage cannot both enter
// in_progress.
type Storage interface {
	// Document operations. Lookups exclude soft-deleted rows.
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	FindByFingerprint(ctx context.Context, hash string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	ListDocuments(ctx context.Context, filter models.DocumentFilter, limit, offset int) ([]*models.Document, int64, error)
	SoftDeleteDocument(ctx context.Context, id string) error

	// Stage record operations. At most one record exists per
	// (document, stage); StartStageRun reuses and resets it across
	// re-runs rather than inserting a second row.
	StartStageRun(ctx context.Context, rec *models.StageRecord, force bool) (*models.StageRecord, error)
	CompleteStageRun(ctx context.Context, docID string, stage models.Stage, result []byte) (*models.StageRecord, error)
	FailStageRun(ctx context.Context, docID string, stage models.Stage, errDetail string) (*models.StageRecord, error)
	GetStageRecord(ctx context.Context, docID string, stage models.Stage) (*models.StageRecord, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountDocumentsByStatus(ctx context.Context) (map[models.DocumentStatus]int64, error)
	CountStageRuns(ctx context.Context) (int64, error)

	Close() error
}
