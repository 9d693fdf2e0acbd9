package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/civiclens/policyd/internal/models"
)

const defaultServerURL = "http://localhost:8080"

// decodeError turns a non-2xx API response into an error carrying the
// server's message when the body is the standard {"error","kind"} shape.
func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error      string `json:"error"`
		Kind       string `json:"kind"`
		ExistingID string `json:"existing_id"`
	}
	if err := json.Unmarshal(b, &apiErr); err == nil && apiErr.Error != "" {
		if apiErr.ExistingID != "" {
			return fmt.Errorf("server returned %d: %s (existing_id: %s)", resp.StatusCode, apiErr.Error, apiErr.ExistingID)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
}

func decodeInto(resp *http.Response, out interface{}) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func uploadViaHTTP(serverURL, path string) (*models.UploadResponse, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/policies", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}
	var out models.UploadResponse
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func listViaHTTP(serverURL string, params url.Values) (*models.ListResponse, error) {
	endpoint := serverURL + "/api/v1/policies"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	resp, err := http.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out models.ListResponse
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func getViaHTTP(serverURL, id string) (*models.Document, error) {
	resp, err := http.Get(serverURL + "/api/v1/policies/" + url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out models.Document
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func updateViaHTTP(serverURL, id string, patch map[string]string) (*models.Document, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPatch, serverURL+"/api/v1/policies/"+url.PathEscape(id), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out models.Document
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func deleteViaHTTP(serverURL, id string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/policies/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

func extractViaHTTP(serverURL, id string, force bool) (*models.ExtractionSummary, error) {
	endpoint := serverURL + "/api/v1/policies/" + url.PathEscape(id) + "/extract"
	if force {
		endpoint += "?force=true"
	}
	resp, err := http.Post(endpoint, "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out models.ExtractionSummary
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func textViaHTTP(serverURL, id string) (*models.ExtractedTextResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/policies/" + url.PathEscape(id) + "/text")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out models.ExtractedTextResponse
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	Policies         int64            `json:"policies"`
	PoliciesByStatus map[string]int64 `json:"policies_by_status"`
	StageRuns        int64            `json:"stage_runs"`
	DiskUsageBytes   *int64           `json:"disk_usage_bytes,omitempty"`
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out statusResponse
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeStatusJSON(w io.Writer, status *statusResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}
