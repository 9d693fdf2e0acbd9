package models

import (
	"fmt"
	"time"
)

// Stage is one named step of the processing pipeline.
type Stage string

const (
	StageTextExtraction Stage = "text_extraction"
	StageSummarization  Stage = "summarization"
	StageEmbedding      Stage = "embedding"
	StageQAReady        Stage = "qa_ready"
)

// ParseStage maps a string token to a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageTextExtraction, StageSummarization, StageEmbedding, StageQAReady:
		return Stage(s), nil
	}
	return "", fmt.Errorf("unknown pipeline stage %q", s)
}

// StageStatus is the run status of a stage record.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// StageRecord is the persistent lifecycle record for one
// (document, stage) pair. There is at most one per pair; re-runs
// reset the existing record instead of creating a second one.
type StageRecord struct {
	ID          string      `json:"run_id" db:"id"`
	DocumentID  string      `json:"policy_id" db:"document_id"`
	Stage       Stage       `json:"stage" db:"stage"`
	Status      StageStatus `json:"status" db:"status"`
	Progress    int         `json:"progress" db:"progress"`
	Result      []byte      `json:"-" db:"result"`
	ErrorDetail string      `json:"error,omitempty" db:"error_message"`
	StartedAt   *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// ExtractionResult is the result payload stored for a completed
// text-extraction run. It is serialized as JSON into the stage
// record's result column; only the extraction pipeline decodes it.
type ExtractionResult struct {
	Text           string    `json:"extracted_text"`
	CharacterCount int       `json:"character_count"`
	WordCount      int       `json:"word_count"`
	ExtractedAt    time.Time `json:"extracted_at"`
}

// ExtractionSummary is the user-facing outcome of an extraction run.
// It carries a bounded preview of the text, never the full text.
type ExtractionSummary struct {
	PolicyID       string      `json:"policy_id"`
	RunID          string      `json:"run_id"`
	Status         StageStatus `json:"status"`
	CharacterCount int         `json:"character_count"`
	WordCount      int         `json:"word_count"`
	TextPreview    string      `json:"text_preview"`
}
