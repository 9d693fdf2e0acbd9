// Package cli provides output formatting for the policyd CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/civiclens/policyd/internal/models"
	"github.com/civiclens/policyd/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WritePolicyList writes a page of policies to w in the given format.
func WritePolicyList(w io.Writer, resp *models.ListResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Showing %d of %d policies (offset %d)\n\n", len(resp.Policies), resp.Total, resp.Offset)
	for _, doc := range resp.Policies {
		writePolicyLine(w, doc)
	}
	return nil
}

// listTitleWidth bounds titles in list output to one terminal line.
const listTitleWidth = 72

func writePolicyLine(w io.Writer, doc *models.Document) {
	title := doc.Title
	if title == "" {
		title = doc.Filename
	}
	fmt.Fprintf(w, "%s  [%s]  %s\n", doc.ID, doc.Status, utils.Truncate(title, listTitleWidth))
	if doc.Jurisdiction != "" || doc.Category != "" {
		fmt.Fprintf(w, "    jurisdiction: %s  category: %s\n", orDash(doc.Jurisdiction), orDash(string(doc.Category)))
	}
}

// WritePolicy writes one policy's details to w in the given format.
func WritePolicy(w io.Writer, doc *models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintf(w, "policy_id:     %s\n", doc.ID)
	fmt.Fprintf(w, "filename:      %s\n", doc.Filename)
	fmt.Fprintf(w, "file_size:     %d\n", doc.FileSize)
	fmt.Fprintf(w, "content_type:  %s\n", doc.ContentType)
	fmt.Fprintf(w, "status:        %s\n", doc.Status)
	if doc.Title != "" {
		fmt.Fprintf(w, "title:         %s\n", doc.Title)
	}
	if doc.Description != "" {
		fmt.Fprintf(w, "description:   %s\n", doc.Description)
	}
	if doc.Jurisdiction != "" {
		fmt.Fprintf(w, "jurisdiction:  %s\n", doc.Jurisdiction)
	}
	if doc.Category != "" {
		fmt.Fprintf(w, "category:      %s\n", doc.Category)
	}
	if doc.Language != "" {
		fmt.Fprintf(w, "language:      %s\n", doc.Language)
	}
	if doc.EffectiveDate != nil {
		fmt.Fprintf(w, "effective:     %s\n", doc.EffectiveDate.Format(time.DateOnly))
	}
	if doc.ExpiryDate != nil {
		fmt.Fprintf(w, "expires:       %s\n", doc.ExpiryDate.Format(time.DateOnly))
	}
	if doc.SourceURL != "" {
		fmt.Fprintf(w, "source_url:    %s\n", doc.SourceURL)
	}
	fmt.Fprintf(w, "created_at:    %s\n", doc.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "updated_at:    %s\n", doc.UpdatedAt.Format(time.RFC3339))
	return nil
}

// WriteUploadResult writes an upload response to w in the given format.
func WriteUploadResult(w io.Writer, resp *models.UploadResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Uploaded %s (%d bytes)\n", resp.Filename, resp.FileSize)
	fmt.Fprintf(w, "policy_id: %s\n", resp.PolicyID)
	fmt.Fprintf(w, "status:    %s\n", resp.Status)
	return nil
}

// WriteExtractionSummary writes an extraction run summary to w in the
// given format.
func WriteExtractionSummary(w io.Writer, summary *models.ExtractionSummary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, summary)
	}
	fmt.Fprintf(w, "policy_id:       %s\n", summary.PolicyID)
	fmt.Fprintf(w, "run_id:          %s\n", summary.RunID)
	fmt.Fprintf(w, "status:          %s\n", summary.Status)
	fmt.Fprintf(w, "character_count: %d\n", summary.CharacterCount)
	fmt.Fprintf(w, "word_count:      %d\n", summary.WordCount)
	if summary.TextPreview != "" {
		fmt.Fprintf(w, "\n%s\n", summary.TextPreview)
	}
	return nil
}

// WriteExtractedText writes a full-text response to w. Text format
// prints only the text body so it pipes cleanly.
func WriteExtractedText(w io.Writer, resp *models.ExtractedTextResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, resp.Text)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
