package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/civiclens/policyd/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testDocument(id, hash string) *models.Document {
	return &models.Document{
		ID:          id,
		Filename:    "policy.pdf",
		FilePath:    "/uploads/" + id + ".pdf",
		FileSize:    1024,
		ContentHash: hash,
		ContentType: "application/pdf",
		Status:      models.StatusUploaded,
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := testDocument("pol_aaaaaaaaaaaa", "hash-1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocument(ctx, "pol_aaaaaaaaaaaa")
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != "policy.pdf" || got.Status != models.StatusUploaded {
		t.Errorf("got %+v", got)
	}
}

func TestCreateDocument_DuplicateFingerprint(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.CreateDocument(ctx, testDocument("pol_aaaaaaaaaaaa", "same-hash")); err != nil {
		t.Fatal(err)
	}
	err := store.CreateDocument(ctx, testDocument("pol_bbbbbbbbbbbb", "same-hash"))
	var dup *DuplicateContentError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateContentError, got %v", err)
	}
	if dup.ExistingID != "pol_aaaaaaaaaaaa" {
		t.Errorf("ExistingID = %s, want pol_aaaaaaaaaaaa", dup.ExistingID)
	}

	n, _ := store.CountDocuments(ctx)
	if n != 1 {
		t.Errorf("expected 1 stored document, got %d", n)
	}
}

func TestSoftDeleteAllowsReadmission(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.CreateDocument(ctx, testDocument("pol_aaaaaaaaaaaa", "h")); err != nil {
		t.Fatal(err)
	}
	if err := store.SoftDeleteDocument(ctx, "pol_aaaaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, "pol_aaaaaaaaaaaa"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted document should be NotFound, got %v", err)
	}
	// Identical content is admissible again after deletion.
	if err := store.CreateDocument(ctx, testDocument("pol_bbbbbbbbbbbb", "h")); err != nil {
		t.Fatalf("re-admission after delete failed: %v", err)
	}
	// A second delete of the same id is NotFound, not idempotent.
	if err := store.SoftDeleteDocument(ctx, "pol_aaaaaaaaaaaa"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should be NotFound, got %v", err)
	}
}

func TestFindByFingerprint(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if _, err := store.FindByFingerprint(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.CreateDocument(ctx, testDocument("pol_aaaaaaaaaaaa", "h1")); err != nil {
		t.Fatal(err)
	}
	got, err := store.FindByFingerprint(ctx, "h1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "pol_aaaaaaaaaaaa" {
		t.Errorf("got %s", got.ID)
	}
}

func TestUpdateDocument(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := testDocument("pol_aaaaaaaaaaaa", "h")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	doc.Title = "National Health Policy 2024"
	doc.Jurisdiction = "Karnataka"
	doc.Category = models.CategoryHealthcare
	if err := store.UpdateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetDocument(ctx, doc.ID)
	if got.Title != "National Health Policy 2024" || got.Category != models.CategoryHealthcare {
		t.Errorf("got %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Error("UpdatedAt should move forward")
	}

	missing := testDocument("pol_zzzzzzzzzzzz", "zz")
	if err := store.UpdateDocument(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListDocuments_FiltersAndPagination(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seed := []struct {
		id           string
		status       models.DocumentStatus
		category     models.Category
		jurisdiction string
	}{
		{"pol_000000000001", models.StatusUploaded, models.CategoryHealthcare, "India"},
		{"pol_000000000002", models.StatusUploaded, models.CategoryEducation, "Karnataka"},
		{"pol_000000000003", models.StatusAnalyzed, models.CategoryHealthcare, "Bangalore"},
		{"pol_000000000004", models.StatusUploaded, models.CategoryFinance, "Karnataka"},
		{"pol_000000000005", models.StatusFailed, models.CategoryOther, "Kerala"},
	}
	for i, s := range seed {
		doc := testDocument(s.id, s.id+"-hash")
		doc.Status = s.status
		doc.Category = s.category
		doc.Jurisdiction = s.jurisdiction
		if err := store.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	docs, total, err := store.ListDocuments(ctx, models.DocumentFilter{}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || total != 5 {
		t.Errorf("got %d docs, total %d; want 2 docs, total 5", len(docs), total)
	}

	docs, total, err = store.ListDocuments(ctx, models.DocumentFilter{Status: models.StatusUploaded}, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 || total != 3 {
		t.Errorf("status filter: got %d docs, total %d", len(docs), total)
	}

	docs, total, err = store.ListDocuments(ctx, models.DocumentFilter{Jurisdiction: "karna"}, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("jurisdiction substring filter: total %d, want 2", total)
	}
	for _, d := range docs {
		if d.Jurisdiction != "Karnataka" {
			t.Errorf("unexpected jurisdiction %s", d.Jurisdiction)
		}
	}

	_, total, err = store.ListDocuments(ctx, models.DocumentFilter{Category: models.CategoryHealthcare}, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("category filter: total %d, want 2", total)
	}
}

func TestStartStageRun_StateMachine(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := testDocument("pol_aaaaaaaaaaaa", "h")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	rec := &models.StageRecord{ID: "run-1", DocumentID: doc.ID, Stage: models.StageTextExtraction}
	started, err := store.StartStageRun(ctx, rec, false)
	if err != nil {
		t.Fatal(err)
	}
	if started.Status != models.StageInProgress || started.StartedAt == nil {
		t.Errorf("got %+v", started)
	}

	// Second start while in progress is rejected.
	_, err = store.StartStageRun(ctx, &models.StageRecord{ID: "run-2", DocumentID: doc.ID, Stage: models.StageTextExtraction}, false)
	if !errors.Is(err, ErrStageRunning) {
		t.Errorf("expected ErrStageRunning, got %v", err)
	}

	if _, err := store.CompleteStageRun(ctx, doc.ID, models.StageTextExtraction, []byte(`{"ok":true}`)); err != nil {
		t.Fatal(err)
	}

	// Completed without force is rejected; with force the record resets.
	_, err = store.StartStageRun(ctx, &models.StageRecord{ID: "run-3", DocumentID: doc.ID, Stage: models.StageTextExtraction}, false)
	if !errors.Is(err, ErrStageCompleted) {
		t.Errorf("expected ErrStageCompleted, got %v", err)
	}
	reset, err := store.StartStageRun(ctx, &models.StageRecord{ID: "run-4", DocumentID: doc.ID, Stage: models.StageTextExtraction}, true)
	if err != nil {
		t.Fatal(err)
	}
	if reset.ID != "run-1" {
		t.Errorf("force start should reuse the record, got id %s", reset.ID)
	}
	if reset.Progress != 0 || reset.Result != nil || reset.ErrorDetail != "" || reset.CompletedAt != nil {
		t.Errorf("force start should reset the record, got %+v", reset)
	}

	// Failed runs restart without force.
	if _, err := store.FailStageRun(ctx, doc.ID, models.StageTextExtraction, "boom"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.StartStageRun(ctx, &models.StageRecord{ID: "run-5", DocumentID: doc.ID, Stage: models.StageTextExtraction}, false); err != nil {
		t.Errorf("failed stage should restart without force: %v", err)
	}
}

func TestStartStageRun_ConcurrentRestart(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := testDocument("pol_aaaaaaaaaaaa", "h")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if _, err := store.StartStageRun(ctx, &models.StageRecord{ID: "run-1", DocumentID: doc.ID, Stage: models.StageTextExtraction}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FailStageRun(ctx, doc.ID, models.StageTextExtraction, "boom"); err != nil {
		t.Fatal(err)
	}

	// Two concurrent restarts of the failed record: the immediate
	// write lock serializes the test-and-set, so exactly one enters
	// in_progress and the loser sees a clean running conflict.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.StartStageRun(ctx,
				&models.StageRecord{ID: "run-retry", DocumentID: doc.ID, Stage: models.StageTextExtraction}, false)
		}(i)
	}
	wg.Wait()

	var started, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrStageRunning):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if started != 1 || rejected != 1 {
		t.Errorf("got %d started, %d rejected; want exactly one of each", started, rejected)
	}

	rec, err := store.GetStageRecord(ctx, doc.ID, models.StageTextExtraction)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.StageInProgress {
		t.Errorf("status = %s, want in_progress", rec.Status)
	}
}

func TestCompleteStageRun(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := testDocument("pol_aaaaaaaaaaaa", "h")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	// Completing an absent record is NotFound.
	_, err := store.CompleteStageRun(ctx, doc.ID, models.StageTextExtraction, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	rec := &models.StageRecord{ID: "run-1", DocumentID: doc.ID, Stage: models.StageTextExtraction}
	if _, err := store.StartStageRun(ctx, rec, false); err != nil {
		t.Fatal(err)
	}
	done, err := store.CompleteStageRun(ctx, doc.ID, models.StageTextExtraction, []byte(`{"n":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.StageCompleted || done.Progress != 100 || done.CompletedAt == nil {
		t.Errorf("got %+v", done)
	}
	if string(done.Result) != `{"n":1}` {
		t.Errorf("result = %s", done.Result)
	}

	// Completing twice is a transition error.
	_, err = store.CompleteStageRun(ctx, doc.ID, models.StageTextExtraction, nil)
	if !errors.Is(err, ErrStageNotRunning) {
		t.Errorf("expected ErrStageNotRunning, got %v", err)
	}
}

func TestFailStageRun(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := testDocument("pol_aaaaaaaaaaaa", "h")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	rec := &models.StageRecord{ID: "run-1", DocumentID: doc.ID, Stage: models.StageTextExtraction}
	if _, err := store.StartStageRun(ctx, rec, false); err != nil {
		t.Fatal(err)
	}
	failed, err := store.FailStageRun(ctx, doc.ID, models.StageTextExtraction, "pdf is encrypted")
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != models.StageFailed || failed.ErrorDetail != "pdf is encrypted" {
		t.Errorf("got %+v", failed)
	}
	if failed.CompletedAt == nil {
		t.Error("failed run should have a completion timestamp")
	}
}

func TestCounts(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := testDocument("pol_aaaaaaaaaaaa", "h")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	rec := &models.StageRecord{ID: "run-1", DocumentID: doc.ID, Stage: models.StageTextExtraction}
	if _, err := store.StartStageRun(ctx, rec, false); err != nil {
		t.Fatal(err)
	}

	n, err := store.CountDocuments(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountDocuments: %v, %d", err, n)
	}
	byStatus, err := store.CountDocumentsByStatus(ctx)
	if err != nil || byStatus[models.StatusUploaded] != 1 {
		t.Errorf("CountDocumentsByStatus: %v, %v", err, byStatus)
	}
	runs, err := store.CountStageRuns(ctx)
	if err != nil || runs != 1 {
		t.Errorf("CountStageRuns: %v, %d", err, runs)
	}
}
