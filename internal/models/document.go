// Package models defines core data structures for policy documents and
// their processing stage records.
package models

import (
	"fmt"
	"time"
)

// DocumentStatus is the lifecycle status of a policy document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusAnalyzed   DocumentStatus = "analyzed"
	StatusFailed     DocumentStatus = "failed"
	StatusArchived   DocumentStatus = "archived"
)

// ParseDocumentStatus maps a string token to a DocumentStatus.
// Returns an error for unknown tokens; the empty string is allowed
// and means "no filter" in list queries.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch DocumentStatus(s) {
	case "", StatusUploaded, StatusProcessing, StatusAnalyzed, StatusFailed, StatusArchived:
		return DocumentStatus(s), nil
	}
	return "", fmt.Errorf("unknown document status %q", s)
}

// Category classifies a policy document by subject area.
type Category string

const (
	CategoryHealthcare     Category = "healthcare"
	CategoryEducation      Category = "education"
	CategoryAgriculture    Category = "agriculture"
	CategoryEmployment     Category = "employment"
	CategoryHousing        Category = "housing"
	CategorySocialWelfare  Category = "social_welfare"
	CategoryInfrastructure Category = "infrastructure"
	CategoryEnvironment    Category = "environment"
	CategoryFinance        Category = "finance"
	CategoryOther          Category = "other"
)

// ParseCategory maps a string token to a Category. The empty string is
// allowed and means "no filter" in list queries.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case "", CategoryHealthcare, CategoryEducation, CategoryAgriculture,
		CategoryEmployment, CategoryHousing, CategorySocialWelfare,
		CategoryInfrastructure, CategoryEnvironment, CategoryFinance, CategoryOther:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Document represents one uploaded policy document. The ID is the
// public identifier (pol_xxxxxxxxxxxx); ContentHash is the SHA-256
// fingerprint of the raw file bytes, unique among non-deleted rows.
type Document struct {
	ID            string         `json:"policy_id" db:"id"`
	Filename      string         `json:"filename" db:"filename"`
	FilePath      string         `json:"-" db:"file_path"`
	FileSize      int64          `json:"file_size" db:"file_size"`
	ContentHash   string         `json:"-" db:"content_hash"`
	ContentType   string         `json:"content_type" db:"content_type"`
	Title         string         `json:"title,omitempty" db:"title"`
	Description   string         `json:"description,omitempty" db:"description"`
	Language      string         `json:"language,omitempty" db:"language"`
	Jurisdiction  string         `json:"jurisdiction,omitempty" db:"jurisdiction"`
	Category      Category       `json:"category,omitempty" db:"category"`
	EffectiveDate *time.Time     `json:"effective_date,omitempty" db:"effective_date"`
	ExpiryDate    *time.Time     `json:"expiry_date,omitempty" db:"expiry_date"`
	SourceURL     string         `json:"source_url,omitempty" db:"source_url"`
	Status        DocumentStatus `json:"status" db:"status"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time     `json:"-" db:"deleted_at"`
}

// Deleted reports whether the document is soft-deleted.
func (d *Document) Deleted() bool {
	return d.DeletedAt != nil
}

// DocumentFilter holds optional list filters. Jurisdiction is a
// case-insensitive substring match; Status and Category match exactly.
type DocumentFilter struct {
	Status       DocumentStatus
	Category     Category
	Jurisdiction string
}
