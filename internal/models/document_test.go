package models

import (
	"testing"
	"time"
)

func TestParseDocumentStatus(t *testing.T) {
	for _, s := range []string{"uploaded", "processing", "analyzed", "failed", "archived"} {
		got, err := ParseDocumentStatus(s)
		if err != nil {
			t.Errorf("ParseDocumentStatus(%q) error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseDocumentStatus(%q) = %q", s, got)
		}
	}

	// Empty string means no filter.
	if got, err := ParseDocumentStatus(""); err != nil || got != "" {
		t.Errorf("ParseDocumentStatus(\"\") = %q, %v; want empty, nil", got, err)
	}

	if _, err := ParseDocumentStatus("deleted"); err == nil {
		t.Error("expected error for unknown status token")
	}
}

func TestParseCategory(t *testing.T) {
	if got, err := ParseCategory("housing"); err != nil || got != CategoryHousing {
		t.Errorf("ParseCategory(housing) = %q, %v", got, err)
	}
	if got, err := ParseCategory(""); err != nil || got != "" {
		t.Errorf("ParseCategory(\"\") = %q, %v; want empty, nil", got, err)
	}
	if _, err := ParseCategory("transport"); err == nil {
		t.Error("expected error for unknown category token")
	}
}

func TestParseStage(t *testing.T) {
	got, err := ParseStage("text_extraction")
	if err != nil || got != StageTextExtraction {
		t.Errorf("ParseStage(text_extraction) = %q, %v", got, err)
	}
	if _, err := ParseStage("ocr"); err == nil {
		t.Error("expected error for unknown stage token")
	}
}

func TestDocumentDeleted(t *testing.T) {
	doc := &Document{ID: "pol_abc123def456"}
	if doc.Deleted() {
		t.Error("document without deleted_at should not report deleted")
	}
	now := time.Now()
	doc.DeletedAt = &now
	if !doc.Deleted() {
		t.Error("document with deleted_at should report deleted")
	}
}
