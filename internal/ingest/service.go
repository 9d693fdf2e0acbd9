// Package ingest admits uploaded policy documents: validation,
// content-based deduplication, and persistence of file plus record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/civiclens/policyd/internal/docid"
	"github.com/civiclens/policyd/internal/fingerprint"
	"github.com/civiclens/policyd/internal/models"
	"github.com/civiclens/policyd/internal/storage"
)

// ErrUnsupportedType is returned when the upload is not a PDF.
var ErrUnsupportedType = errors.New("invalid file type, only PDF files are allowed")

// ErrTooLarge is returned when the upload exceeds the size limit.
var ErrTooLarge = errors.New("file size exceeds maximum allowed size")

// ConflictError reports that byte-identical content is already stored.
type ConflictError struct {
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a policy with this content already exists: %s", e.ExistingID)
}

// Service validates and admits uploads. Limits come from explicit
// configuration at construction, not process-wide state.
type Service struct {
	storage  storage.Storage
	files    *storage.FileStore
	maxBytes int64
	logger   *zap.Logger
}

// NewService returns an ingestion service writing files through files
// and records through st. maxBytes bounds the accepted upload size.
func NewService(st storage.Storage, files *storage.FileStore, maxBytes int64, logger *zap.Logger) *Service {
	return &Service{storage: st, files: files, maxBytes: maxBytes, logger: logger}
}

// Admit validates the upload, rejects duplicates by content
// fingerprint, stores the bytes as <doc-id>.pdf under the upload
// root, and creates the document record with status uploaded.
//
// Validation happens before anything is persisted. When the record
// insert loses a concurrent-admission race, the already-written file
// is removed before the conflict surfaces, so no orphaned file is
// left behind.
func (s *Service) Admit(ctx context.Context, filename, contentType string, content []byte) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" || contentType != "application/pdf" {
		return nil, ErrUnsupportedType
	}
	if int64(len(content)) > s.maxBytes {
		return nil, fmt.Errorf("%w: got %d bytes, limit %d", ErrTooLarge, len(content), s.maxBytes)
	}

	hash := fingerprint.Sum(content)
	if existing, err := s.storage.FindByFingerprint(ctx, hash); err == nil {
		return nil, &ConflictError{ExistingID: existing.ID}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	id, err := docid.New()
	if err != nil {
		return nil, err
	}
	path, err := s.files.Save(id, ext, content)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &models.Document{
		ID:          id,
		Filename:    filename,
		FilePath:    path,
		FileSize:    int64(len(content)),
		ContentHash: hash,
		ContentType: contentType,
		Status:      models.StatusUploaded,
	}
	if err := s.storage.CreateDocument(ctx, doc); err != nil {
		if removeErr := s.files.Remove(path); removeErr != nil {
			s.logger.Warn("failed to clean up orphaned upload",
				zap.String("path", path), zap.Error(removeErr))
		}
		var dup *storage.DuplicateContentError
		if errors.As(err, &dup) {
			// Concurrent admission of identical content won the race.
			return nil, &ConflictError{ExistingID: dup.ExistingID}
		}
		return nil, err
	}

	s.logger.Info("policy admitted",
		zap.String("policy_id", id),
		zap.String("filename", filename),
		zap.Int64("size", doc.FileSize),
	)
	return doc, nil
}
