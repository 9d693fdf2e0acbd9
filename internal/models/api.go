package models

import "time"

// UploadResponse is returned after a successful policy upload.
type UploadResponse struct {
	PolicyID    string         `json:"policy_id"`
	Filename    string         `json:"filename"`
	FileSize    int64          `json:"file_size"`
	ContentType string         `json:"content_type"`
	UploadedAt  time.Time      `json:"uploaded_at"`
	StoragePath string         `json:"storage_path"`
	Status      DocumentStatus `json:"status"`
}

// ListResponse is a paginated page of policy documents plus the
// total count matching the filters (not just the page size).
type ListResponse struct {
	Policies []*Document `json:"policies"`
	Total    int64       `json:"total"`
	Limit    int         `json:"limit"`
	Offset   int         `json:"offset"`
}

// ExtractedTextResponse carries the full stored text for a policy
// whose text-extraction stage has completed.
type ExtractedTextResponse struct {
	PolicyID       string `json:"policy_id"`
	Filename       string `json:"filename"`
	Text           string `json:"text"`
	CharacterCount int    `json:"character_count"`
	WordCount      int    `json:"word_count"`
}
