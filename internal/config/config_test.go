package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("host default missing: %s", cfg.Server.Host)
	}
	if cfg.Ingest.MaxUploadBytes != MaxUploadBytesDefault {
		t.Errorf("max upload default = %d", cfg.Ingest.MaxUploadBytes)
	}
	if cfg.List.DefaultLimit != 20 || cfg.List.MaxLimit != 100 {
		t.Errorf("pagination defaults: %+v", cfg.List)
	}
	if cfg.Ingest.InboxDir != "" {
		t.Errorf("inbox should be disabled by default, got %q", cfg.Ingest.InboxDir)
	}
}

func TestLoadExpandsRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "storage:\n  database_path: ./data/policyd.db\n  upload_dir: ./uploads\ningest:\n  inbox_dir: ./inbox\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "data/policyd.db") {
		t.Errorf("database_path = %s", cfg.Storage.DatabasePath)
	}
	if cfg.Storage.UploadDir != filepath.Join(dir, "uploads") {
		t.Errorf("upload_dir = %s", cfg.Storage.UploadDir)
	}
	if cfg.Ingest.InboxDir != filepath.Join(dir, "inbox") {
		t.Errorf("inbox_dir = %s", cfg.Ingest.InboxDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.Port = 9999
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9999 {
		t.Errorf("port = %d", loaded.Server.Port)
	}
}
