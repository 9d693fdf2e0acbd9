// Package main is the policyd CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/civiclens/policyd/internal/cli"
	"github.com/civiclens/policyd/internal/config"
	"github.com/civiclens/policyd/internal/extract"
	"github.com/civiclens/policyd/internal/ingest"
	"github.com/civiclens/policyd/internal/pipeline"
	"github.com/civiclens/policyd/internal/server"
	"github.com/civiclens/policyd/internal/stages"
	"github.com/civiclens/policyd/internal/storage"
	"github.com/civiclens/policyd/internal/watcher"
	"github.com/civiclens/policyd/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/policyd/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used, so that "policyd server" from the project dir uses the project's
// config (including debug). Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "upload":
		runUpload()
	case "list":
		runList()
	case "get":
		runGet()
	case "update":
		runUpdate()
	case "delete":
		runDelete()
	case "extract":
		runExtract()
	case "text":
		runText()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("policyd version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if cfg.Ingest.InboxDir != "" {
		ing := components.Ingest
		inbox := watcher.NewInbox(cfg.Ingest.InboxDir, func(path string) {
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				logger.Warn("inbox read failed", zap.String("path", path), zap.Error(readErr))
				return
			}
			if _, admitErr := ing.Admit(context.Background(), filepath.Base(path), "application/pdf", content); admitErr != nil {
				logger.Warn("inbox admit failed", zap.String("path", path), zap.Error(admitErr))
			}
		}, logger)
		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		if err := inbox.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer inbox.Stop()
		inbox.SyncExisting()
	}

	srv := server.NewServer(
		components.Ingest,
		components.Pipeline,
		components.Storage,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Files    *storage.FileStore
	Ingest   *ingest.Service
	Pipeline *pipeline.Extraction
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	files, err := storage.NewFileStore(cfg.Storage.UploadDir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}

	tracker := stages.NewTracker(store, logger)
	pipe := pipeline.NewExtraction(store, tracker, extract.NewExtractor(), logger)
	ing := ingest.NewService(store, files, cfg.Ingest.MaxUploadBytes, logger)

	return &Components{
		Storage:  store,
		Files:    files,
		Ingest:   ing,
		Pipeline: pipe,
	}, nil
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: policyd upload [flags] <file.pdf>")
		os.Exit(1)
	}
	format := mustOutputFormat(*outputFormat)

	resp, err := uploadViaHTTP(*serverURL, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteUploadResult(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	status := fs.String("status", "", "filter by status")
	category := fs.String("category", "", "filter by category")
	jurisdiction := fs.String("jurisdiction", "", "filter by jurisdiction substring")
	limit := fs.Int("limit", 0, "page size (server default when 0)")
	offset := fs.Int("offset", 0, "page offset")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := mustOutputFormat(*outputFormat)

	params := url.Values{}
	if *status != "" {
		params.Set("status", *status)
	}
	if *category != "" {
		params.Set("category", *category)
	}
	if *jurisdiction != "" {
		params.Set("jurisdiction", *jurisdiction)
	}
	if *limit > 0 {
		params.Set("limit", strconv.Itoa(*limit))
	}
	if *offset > 0 {
		params.Set("offset", strconv.Itoa(*offset))
	}

	resp, err := listViaHTTP(*serverURL, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WritePolicyList(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runGet() {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: policyd get [flags] <policy-id>")
		os.Exit(1)
	}
	format := mustOutputFormat(*outputFormat)

	doc, err := getViaHTTP(*serverURL, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Get failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WritePolicy(os.Stdout, doc, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runUpdate() {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	title := fs.String("title", "", "policy title")
	description := fs.String("description", "", "policy description")
	jurisdiction := fs.String("jurisdiction", "", "issuing jurisdiction")
	category := fs.String("category", "", "policy category")
	language := fs.String("language", "", "document language")
	sourceURL := fs.String("source-url", "", "source URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: policyd update [flags] <policy-id>")
		os.Exit(1)
	}
	format := mustOutputFormat(*outputFormat)

	patch := map[string]string{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			patch["title"] = *title
		case "description":
			patch["description"] = *description
		case "jurisdiction":
			patch["jurisdiction"] = *jurisdiction
		case "category":
			patch["category"] = *category
		case "language":
			patch["language"] = *language
		case "source-url":
			patch["source_url"] = *sourceURL
		}
	})
	if len(patch) == 0 {
		fmt.Println("Nothing to update; pass at least one field flag")
		os.Exit(1)
	}

	doc, err := updateViaHTTP(*serverURL, fs.Arg(0), patch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WritePolicy(os.Stdout, doc, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: policyd delete [flags] <policy-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)
	if err := deleteViaHTTP(*serverURL, id); err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Policy deleted: %s\n", id)
}

func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	force := fs.Bool("force", false, "re-run extraction even if already completed")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: policyd extract [flags] <policy-id>")
		os.Exit(1)
	}
	format := mustOutputFormat(*outputFormat)

	summary, err := extractViaHTTP(*serverURL, fs.Arg(0), *force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteExtractionSummary(os.Stdout, summary, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runText() {
	fs := flag.NewFlagSet("text", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: policyd text [flags] <policy-id>")
		os.Exit(1)
	}
	format := mustOutputFormat(*outputFormat)

	resp, err := textViaHTTP(*serverURL, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Text fetch failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteExtractedText(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := mustOutputFormat(*outputFormat)

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputJSON {
		if err := writeStatusJSON(os.Stdout, status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Printf("policies:    %d\n", status.Policies)
	for s, n := range status.PoliciesByStatus {
		fmt.Printf("  %-10s %d\n", s+":", n)
	}
	fmt.Printf("stage_runs:  %d\n", status.StageRuns)
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage:  %d bytes\n", *status.DiskUsageBytes)
	}
}

func mustOutputFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return format
}

func printUsage() {
	fmt.Println(`policyd - Policy document ingestion and processing service

Usage:
  policyd server [flags]              Start the HTTP server
  policyd upload [flags] <file.pdf>   Upload a policy document
  policyd list [flags]                List policy documents
  policyd get [flags] <policy-id>     Show one policy document
  policyd update [flags] <policy-id>  Edit classification fields
  policyd delete [flags] <policy-id>  Soft-delete a policy document
  policyd extract [flags] <policy-id> Run text extraction
  policyd text [flags] <policy-id>    Print extracted text
  policyd status [flags]              Show store counts and disk usage
  policyd version                     Show version
  policyd help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/policyd/config.yaml)
  --debug            Enable debug logging

Client Flags (upload/list/get/update/delete/extract/text/status):
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

List Flags:
  --status string        Filter by lifecycle status
  --category string      Filter by category
  --jurisdiction string  Filter by jurisdiction substring
  --limit int            Page size
  --offset int           Page offset

Update Flags:
  --title, --description, --jurisdiction, --category, --language, --source-url

Extract Flags:
  --force            Re-run extraction even if already completed

Examples:
  policyd server
  policyd upload clean-air-act.pdf
  policyd list --status uploaded --jurisdiction Karnataka
  policyd extract pol_a1b2c3d4e5f6
  policyd extract --force pol_a1b2c3d4e5f6
  policyd text pol_a1b2c3d4e5f6 > policy.txt
  policyd status --output json`)
}
