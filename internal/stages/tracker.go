// Package stages tracks the lifecycle of processing pipeline stages.
// It is the sole mutator of stage records: orchestrators call Start,
// then exactly one of Complete or Fail.
package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civiclens/policyd/internal/models"
	"github.com/civiclens/policyd/internal/storage"
)

// Sentinels for rejected starts, re-exported from storage so callers
// outside the persistence layer match on one package.
var (
	// ErrAlreadyRunning means a run for this (document, stage) is in
	// progress; a duplicate concurrent run was prevented.
	ErrAlreadyRunning = storage.ErrStageRunning
	// ErrAlreadyCompleted means the stage already completed and the
	// caller did not pass force.
	ErrAlreadyCompleted = storage.ErrStageCompleted
)

// Tracker drives the per-(document, stage) state machine.
type Tracker struct {
	storage storage.Storage
	logger  *zap.Logger
}

// NewTracker returns a Tracker persisting through the given storage.
func NewTracker(st storage.Storage, logger *zap.Logger) *Tracker {
	return &Tracker{storage: st, logger: logger}
}

// Start transitions the (docID, stage) record to in_progress,
// creating it on first use. A completed record restarts only with
// force; a failed record always restarts; a record already in
// progress is rejected with ErrAlreadyRunning. Restarting resets
// progress, result, and error, and sets a fresh start timestamp.
func (t *Tracker) Start(ctx context.Context, docID string, stage models.Stage, force bool) (*models.StageRecord, error) {
	rec := &models.StageRecord{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Stage:      stage,
	}
	started, err := t.storage.StartStageRun(ctx, rec, force)
	if err != nil {
		return nil, err
	}
	t.logger.Info("stage started",
		zap.String("policy_id", docID),
		zap.String("stage", string(stage)),
		zap.String("run_id", started.ID),
		zap.Bool("force", force),
	)
	return started, nil
}

// Complete transitions an in_progress record to completed, storing
// the JSON-encoded result payload and setting progress to 100.
func (t *Tracker) Complete(ctx context.Context, docID string, stage models.Stage, result interface{}) (*models.StageRecord, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode stage result: %w", err)
	}
	rec, err := t.storage.CompleteStageRun(ctx, docID, stage, payload)
	if err != nil {
		return nil, err
	}
	t.logger.Info("stage completed",
		zap.String("policy_id", docID),
		zap.String("stage", string(stage)),
		zap.String("run_id", rec.ID),
	)
	return rec, nil
}

// Fail transitions an in_progress record to failed with the given
// error detail.
func (t *Tracker) Fail(ctx context.Context, docID string, stage models.Stage, cause error) (*models.StageRecord, error) {
	rec, err := t.storage.FailStageRun(ctx, docID, stage, cause.Error())
	if err != nil {
		return nil, err
	}
	t.logger.Warn("stage failed",
		zap.String("policy_id", docID),
		zap.String("stage", string(stage)),
		zap.String("run_id", rec.ID),
		zap.Error(cause),
	)
	return rec, nil
}

// Get returns the record for (docID, stage), or storage.ErrNotFound
// when the stage was never attempted.
func (t *Tracker) Get(ctx context.Context, docID string, stage models.Stage) (*models.StageRecord, error) {
	return t.storage.GetStageRecord(ctx, docID, stage)
}
