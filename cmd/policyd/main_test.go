package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/civiclens/policyd/internal/models"
)

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestListViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/policies" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("status") != "uploaded" {
			t.Errorf("expected status query param, got %q", r.URL.Query().Get("status"))
		}
		_ = json.NewEncoder(w).Encode(&models.ListResponse{
			Policies: []*models.Document{{ID: "pol_abc123def456"}},
			Total:    1,
			Limit:    20,
		})
	}))
	defer srv.Close()

	params := url.Values{}
	params.Set("status", "uploaded")
	resp, err := listViaHTTP(srv.URL, params)
	if err != nil {
		t.Fatalf("listViaHTTP: %v", err)
	}
	if resp.Total != 1 || len(resp.Policies) != 1 || resp.Policies[0].ID != "pol_abc123def456" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGetViaHTTP_notFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "policy not found", "kind": "not_found"})
	}))
	defer srv.Close()

	_, err := getViaHTTP(srv.URL, "pol_missing00000")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	want := "server returned 404: policy not found"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestUploadViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&models.UploadResponse{
			PolicyID: "pol_abc123def456",
			Filename: header.Filename,
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "upload.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 content"), 0600); err != nil {
		t.Fatal(err)
	}

	resp, err := uploadViaHTTP(srv.URL, path)
	if err != nil {
		t.Fatalf("uploadViaHTTP: %v", err)
	}
	if resp.PolicyID != "pol_abc123def456" || resp.Filename != "upload.pdf" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestUploadViaHTTP_conflictCarriesExistingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":       "document with identical content already exists",
			"kind":        "conflict",
			"existing_id": "pol_original0001",
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "dup.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 content"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := uploadViaHTTP(srv.URL, path)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	want := "server returned 409: document with identical content already exists (existing_id: pol_original0001)"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestDeleteViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := deleteViaHTTP(srv.URL, "pol_abc123def456"); err != nil {
		t.Fatalf("deleteViaHTTP: %v", err)
	}
}

func TestExtractViaHTTP_forceQueryParam(t *testing.T) {
	var gotForce string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotForce = r.URL.Query().Get("force")
		_ = json.NewEncoder(w).Encode(&models.ExtractionSummary{
			PolicyID: "pol_abc123def456",
			RunID:    "run-1",
			Status:   models.StageCompleted,
		})
	}))
	defer srv.Close()

	summary, err := extractViaHTTP(srv.URL, "pol_abc123def456", true)
	if err != nil {
		t.Fatalf("extractViaHTTP: %v", err)
	}
	if gotForce != "true" {
		t.Errorf("expected force=true query param, got %q", gotForce)
	}
	if summary.RunID != "run-1" {
		t.Errorf("unexpected summary: %+v", summary)
	}
}
