// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/civiclens/policyd/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do
// not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// Immediate transactions take the write lock at BEGIN, so the
	// stage-start test-and-set serializes cleanly instead of failing
	// with a snapshot conflict under WAL.
	db, err := sql.Open("sqlite3", dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		content_type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		jurisdiction TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		effective_date TIMESTAMP,
		expiry_date TIMESTAMP,
		source_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_active_hash
		ON documents(content_hash) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_jurisdiction ON documents(jurisdiction);

	CREATE TABLE IF NOT EXISTS stage_records (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		result TEXT,
		error_message TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(document_id, stage),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_stage_records_status ON stage_records(status);
	`
	_, err := db.Exec(schema)
	return err
}

const documentColumns = `id, filename, file_path, file_size, content_hash, content_type,
	title, description, language, jurisdiction, category,
	effective_date, expiry_date, source_url, status,
	created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var effective, expiry, deleted sql.NullTime
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileSize, &doc.ContentHash, &doc.ContentType,
		&doc.Title, &doc.Description, &doc.Language, &doc.Jurisdiction, &doc.Category,
		&effective, &expiry, &doc.SourceURL, &doc.Status,
		&doc.CreatedAt, &doc.UpdatedAt, &deleted,
	)
	if err != nil {
		return nil, err
	}
	if effective.Valid {
		doc.EffectiveDate = &effective.Time
	}
	if expiry.Valid {
		doc.ExpiryDate = &expiry.Time
	}
	if deleted.Valid {
		doc.DeletedAt = &deleted.Time
	}
	return &doc, nil
}

// CreateDocument inserts a document. A fingerprint collision with a
// non-deleted document is detected by the partial unique index on
// content_hash and reported as *DuplicateContentError carrying the
// existing document's id, so concurrent creates of identical content
// cannot both succeed.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.FilePath, doc.FileSize, doc.ContentHash, doc.ContentType,
		doc.Title, doc.Description, doc.Language, doc.Jurisdiction, doc.Category,
		nullTime(doc.EffectiveDate), nullTime(doc.ExpiryDate), doc.SourceURL, doc.Status,
		doc.CreatedAt, doc.UpdatedAt, nullTime(doc.DeletedAt),
	)
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		existing, findErr := s.FindByFingerprint(ctx, doc.ContentHash)
		if findErr == nil {
			return &DuplicateContentError{ExistingID: existing.ID}
		}
	}
	return err
}

// GetDocument returns a non-deleted document by id.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND deleted_at IS NULL`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// FindByFingerprint returns the non-deleted document with the given
// content hash, or ErrNotFound.
func (s *SQLiteStorage) FindByFingerprint(ctx context.Context, hash string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = ? AND deleted_at IS NULL`, hash)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fingerprint %s: %w", hash, ErrNotFound)
	}
	return doc, err
}

// UpdateDocument updates the mutable fields of an existing document.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET title = ?, description = ?, language = ?, jurisdiction = ?,
			category = ?, effective_date = ?, expiry_date = ?, source_url = ?,
			status = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		doc.Title, doc.Description, doc.Language, doc.Jurisdiction,
		doc.Category, nullTime(doc.EffectiveDate), nullTime(doc.ExpiryDate), doc.SourceURL,
		doc.Status, doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
	}
	return nil
}

// ListDocuments returns non-deleted documents matching the filter,
// newest first (id as tiebreak for a stable order), plus the total
// count matching the filter.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, filter models.DocumentFilter, limit, offset int) ([]*models.Document, int64, error) {
	where := `deleted_at IS NULL`
	args := []interface{}{}
	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Jurisdiction != "" {
		where += ` AND jurisdiction LIKE ?`
		args = append(args, "%"+filter.Jurisdiction+"%")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+where+`
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// SoftDeleteDocument sets the deletion timestamp. A second delete of
// the same id reports ErrNotFound since the row is already excluded.
func (s *SQLiteStorage) SoftDeleteDocument(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

const stageColumns = `id, document_id, stage, status, progress, result, error_message,
	started_at, completed_at, created_at`

func scanStageRecord(row rowScanner) (*models.StageRecord, error) {
	var rec models.StageRecord
	var started, completed sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.DocumentID, &rec.Stage, &rec.Status, &rec.Progress,
		&rec.Result, &rec.ErrorDetail, &started, &completed, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		rec.StartedAt = &started.Time
	}
	if completed.Valid {
		rec.CompletedAt = &completed.Time
	}
	return &rec, nil
}

// StartStageRun transitions the (document, stage) record to
// in_progress. When no record exists, rec is inserted as the new
// record. An existing record is reused: failed runs always restart,
// completed runs restart only with force, and a record already in
// progress is rejected with ErrStageRunning. The test-and-set runs in
// one transaction; a concurrent insert race is resolved by the
// UNIQUE(document_id, stage) constraint.
func (s *SQLiteStorage) StartStageRun(ctx context.Context, rec *models.StageRecord, force bool) (*models.StageRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stage_records WHERE document_id = ? AND stage = ?`,
		rec.DocumentID, rec.Stage)
	existing, err := scanStageRecord(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec.Status = models.StageInProgress
		rec.Progress = 0
		rec.Result = nil
		rec.ErrorDetail = ""
		rec.StartedAt = &now
		rec.CompletedAt = nil
		rec.CreatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stage_records (`+stageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.DocumentID, rec.Stage, rec.Status, rec.Progress,
			rec.Result, rec.ErrorDetail, rec.StartedAt, nil, rec.CreatedAt,
		)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
				// A concurrent start won the race.
				return nil, ErrStageRunning
			}
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return rec, nil

	case err != nil:
		return nil, err

	case existing.Status == models.StageInProgress:
		return nil, ErrStageRunning

	case existing.Status == models.StageCompleted && !force:
		return nil, ErrStageCompleted
	}

	// failed, pending, or completed with force: reset the record.
	_, err = tx.ExecContext(ctx,
		`UPDATE stage_records SET status = ?, progress = 0, result = NULL,
			error_message = '', started_at = ?, completed_at = NULL
		 WHERE id = ?`,
		models.StageInProgress, now, existing.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	existing.Status = models.StageInProgress
	existing.Progress = 0
	existing.Result = nil
	existing.ErrorDetail = ""
	existing.StartedAt = &now
	existing.CompletedAt = nil
	return existing, nil
}

// CompleteStageRun transitions an in_progress record to completed,
// storing the result payload and setting progress to 100.
func (s *SQLiteStorage) CompleteStageRun(ctx context.Context, docID string, stage models.Stage, result []byte) (*models.StageRecord, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_records SET status = ?, progress = 100, result = ?, completed_at = ?
		 WHERE document_id = ? AND stage = ? AND status = ?`,
		models.StageCompleted, result, now, docID, stage, models.StageInProgress,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.stageTransitionError(ctx, docID, stage)
	}
	return s.GetStageRecord(ctx, docID, stage)
}

// FailStageRun transitions an in_progress record to failed with the
// given error detail.
func (s *SQLiteStorage) FailStageRun(ctx context.Context, docID string, stage models.Stage, errDetail string) (*models.StageRecord, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_records SET status = ?, error_message = ?, completed_at = ?
		 WHERE document_id = ? AND stage = ? AND status = ?`,
		models.StageFailed, errDetail, now, docID, stage, models.StageInProgress,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.stageTransitionError(ctx, docID, stage)
	}
	return s.GetStageRecord(ctx, docID, stage)
}

// stageTransitionError distinguishes "record absent" from "record not
// in progress" after a guarded update touched no rows.
func (s *SQLiteStorage) stageTransitionError(ctx context.Context, docID string, stage models.Stage) error {
	if _, err := s.GetStageRecord(ctx, docID, stage); errors.Is(err, ErrNotFound) {
		return err
	}
	return ErrStageNotRunning
}

// GetStageRecord returns the record for (docID, stage), or ErrNotFound.
func (s *SQLiteStorage) GetStageRecord(ctx context.Context, docID string, stage models.Stage) (*models.StageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stage_records WHERE document_id = ? AND stage = ?`,
		docID, stage)
	rec, err := scanStageRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stage %s for document %s: %w", stage, docID, ErrNotFound)
	}
	return rec, err
}

// CountDocuments returns the number of non-deleted documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL`).Scan(&count)
	return count, err
}

// CountDocumentsByStatus returns non-deleted document counts grouped by status.
func (s *SQLiteStorage) CountDocumentsByStatus(ctx context.Context) (map[models.DocumentStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM documents WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.DocumentStatus]int64)
	for rows.Next() {
		var status models.DocumentStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CountStageRuns returns the total number of stage records.
func (s *SQLiteStorage) CountStageRuns(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stage_records`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
