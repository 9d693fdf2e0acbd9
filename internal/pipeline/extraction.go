// Package pipeline orchestrates processing stage runs for policy
// documents. The implemented stage is text extraction; future stages
// (summarization, embedding, QA-readiness) follow the same lifecycle.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/civiclens/policyd/internal/extract"
	"github.com/civiclens/policyd/internal/models"
	"github.com/civiclens/policyd/internal/stages"
	"github.com/civiclens/policyd/internal/storage"
	"github.com/civiclens/policyd/pkg/utils"
)

// previewLength bounds the text preview returned in extraction summaries.
const previewLength = 500

// ErrExtraction marks a failed extraction run. The stage record is
// always transitioned to failed before this error surfaces.
var ErrExtraction = errors.New("text extraction failed")

// ErrNoExtractedText is returned by ExtractedText when the
// text-extraction stage has not completed for the document. This is
// distinct from the document itself being absent.
var ErrNoExtractedText = errors.New("no extracted text found for this policy")

// errEmptyText is the failure recorded when a PDF yields no text.
var errEmptyText = errors.New("no text content found in PDF")

// Extraction runs the text-extraction stage for policy documents.
type Extraction struct {
	storage   storage.Storage
	tracker   *stages.Tracker
	extractor *extract.Extractor
	logger    *zap.Logger
}

// NewExtraction wires the extraction pipeline.
func NewExtraction(st storage.Storage, tracker *stages.Tracker, ex *extract.Extractor, logger *zap.Logger) *Extraction {
	return &Extraction{storage: st, tracker: tracker, extractor: ex, logger: logger}
}

// Run executes text extraction for the document. force permits
// re-running a completed stage. Conflicting starts surface the
// tracker's ErrAlreadyCompleted / ErrAlreadyRunning; every failure
// after the stage enters in_progress transitions the record to
// failed before returning, so a run is never left dangling.
func (p *Extraction) Run(ctx context.Context, docID string, force bool) (*models.ExtractionSummary, error) {
	doc, err := p.storage.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	rec, err := p.tracker.Start(ctx, docID, models.StageTextExtraction, force)
	if err != nil {
		return nil, err
	}

	text, err := p.extractor.File(doc.FilePath)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyText
	}
	if err != nil {
		if _, failErr := p.tracker.Fail(ctx, docID, models.StageTextExtraction, err); failErr != nil {
			p.logger.Error("failed to record extraction failure",
				zap.String("policy_id", docID), zap.Error(failErr))
		}
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	result := &models.ExtractionResult{
		Text:           text,
		CharacterCount: utf8.RuneCountInString(text),
		WordCount:      utils.WordCount(text),
		ExtractedAt:    time.Now().UTC(),
	}
	completed, err := p.tracker.Complete(ctx, docID, models.StageTextExtraction, result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	return &models.ExtractionSummary{
		PolicyID:       docID,
		RunID:          rec.ID,
		Status:         completed.Status,
		CharacterCount: result.CharacterCount,
		WordCount:      result.WordCount,
		TextPreview:    utils.Preview(text, previewLength),
	}, nil
}

// ExtractedText returns the stored full text for the document.
// The document must exist (storage.ErrNotFound otherwise); a missing
// or incomplete extraction reports ErrNoExtractedText.
func (p *Extraction) ExtractedText(ctx context.Context, docID string) (*models.ExtractedTextResponse, error) {
	doc, err := p.storage.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	rec, err := p.tracker.Get(ctx, docID, models.StageTextExtraction)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoExtractedText
		}
		return nil, err
	}
	if rec.Status != models.StageCompleted || len(rec.Result) == 0 {
		return nil, ErrNoExtractedText
	}

	var result models.ExtractionResult
	if err := json.Unmarshal(rec.Result, &result); err != nil {
		return nil, fmt.Errorf("decode extraction result: %w", err)
	}
	return &models.ExtractedTextResponse{
		PolicyID:       docID,
		Filename:       doc.Filename,
		Text:           result.Text,
		CharacterCount: result.CharacterCount,
		WordCount:      result.WordCount,
	}, nil
}
