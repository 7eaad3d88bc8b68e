// Package main is the statsearch CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/statsearch/internal/artifact"
	"github.com/hyperjump/statsearch/internal/cli"
	"github.com/hyperjump/statsearch/internal/config"
	"github.com/hyperjump/statsearch/internal/corpus"
	"github.com/hyperjump/statsearch/internal/models"
	"github.com/hyperjump/statsearch/internal/reload"
	"github.com/hyperjump/statsearch/internal/server"
	"github.com/hyperjump/statsearch/internal/storage"
	"github.com/hyperjump/statsearch/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/statsearch/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
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
	case "build":
		runBuild()
	case "import":
		runImport()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("statsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger shared by all commands.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || debug
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	fastMode := fs.Bool("fast", false, "start without the model and index (search disabled)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolvedConfigPath := setup(*configPath, *debug)
	defer logger.Sync()
	if *fastMode {
		cfg.Search.FastMode = true
	}

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
		zap.Bool("fast_mode", cfg.Search.FastMode),
		zap.String("artifact_backend", cfg.Artifacts.Backend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metadata, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	if _, err := importCorpus(ctx, cfg, metadata, logger); err != nil {
		logger.Warn("corpus import skipped", zap.String("path", cfg.Storage.CorpusPath), zap.Error(err))
	}
	_ = metadata.Close()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()
	logger.Info("search engine ready",
		zap.String("mode", components.Engine.Mode()),
		zap.Bool("index_loaded", components.Engine.IndexLoaded()),
		zap.Int("index_size", components.Engine.IndexSize()),
	)

	if cfg.Storage.WatchArtifacts && !cfg.Search.FastMode {
		if local, ok := components.Artifacts.(*artifact.LocalStore); ok {
			reloader := reload.New(local, components.Embedder.Dimensions(), components.Model, components.Engine, reload.WithLogger(logger))
			if err := reloader.Start(ctx); err != nil {
				logger.Warn("artifact watch disabled", zap.Error(err))
			} else {
				defer reloader.Stop()
			}
		} else {
			logger.Warn("watch_artifacts requires the local artifact backend", zap.String("backend", cfg.Artifacts.Backend))
		}
	}

	srv := server.NewServer(components.Engine, components.Storage, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	corpusPath := fs.String("corpus", "", "corpus JSON file (default: records from the metadata database)")
	mock := fs.Bool("mock", false, "build with the mock embedder when the model cannot be loaded")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()
	ctx := context.Background()

	records, err := buildRecords(ctx, cfg, *corpusPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read records: %v\n", err)
		os.Exit(1)
	}
	dst, err := artifact.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open artifact store: %v\n", err)
		os.Exit(1)
	}
	embedder, model, err := openBuildEmbedder(cfg, *mock || cfg.Embedding.AllowMock, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	defer embedder.Close()

	start := time.Now()
	_, manifest, err := newBuilder(cfg, embedder, logger).BuildAndPersist(ctx, records, dst, model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Index built: %d vectors, dimension %d, model %s, build %s (%s)\n",
		manifest.Count, manifest.Dimension, manifest.Model, manifest.BuildID, time.Since(start).Round(time.Millisecond))
}

// buildRecords returns the corpus to index: the given JSON file, or every
// record in the metadata database when corpusPath is empty.
func buildRecords(ctx context.Context, cfg *config.Config, corpusPath string) ([]models.Record, error) {
	if corpusPath != "" {
		return corpus.ReadFile(corpusPath)
	}
	metadata, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer metadata.Close()
	return metadata.ListRecords(ctx)
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	corpusPath := fs.String("corpus", "", "corpus JSON file (default: storage.corpus_path)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	if *corpusPath != "" {
		cfg.Storage.CorpusPath = *corpusPath
	}

	metadata, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}
	defer metadata.Close()

	n, err := importCorpus(context.Background(), cfg, metadata, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	if n == 0 {
		fmt.Println("Database already populated; nothing imported")
		return
	}
	fmt.Printf("Imported %d records into %s\n", n, cfg.Storage.DatabasePath)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: statsearch search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  statsearch search unemployment rate
  statsearch search --limit 10 "consumer price index"
  statsearch search --raw --limit 3 housing      # ids and distances only
  statsearch search --server http://localhost:8000 gdp
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseOutputFormat(s string) (cli.SearchOutputFormat, error) {
	switch s {
	case "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = load the index locally)")
	limit := fs.Int("limit", models.DefaultLimit, "number of results")
	raw := fs.Bool("raw", false, "print ids and distances without metadata (local only)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query := &models.SearchQuery{Query: queryStr, Limit: *limit}

	if *serverURL != "" {
		if *raw {
			fmt.Fprintln(os.Stderr, "--raw is not available with --server")
			os.Exit(1)
		}
		start := time.Now()
		records, err := searchViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, queryStr, records, time.Since(start), format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	if *raw {
		neighbors, err := components.Engine.Neighbors(ctx, queryStr, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteNeighbors(os.Stdout, neighbors, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	start := time.Now()
	records, err := components.Engine.Find(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, queryStr, records, time.Since(start), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) ([]*models.Record, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/find", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var records []*models.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return records, nil
}

// statusResponse is the shape of GET /status.
type statusResponse struct {
	Mode            string `json:"mode"`
	SearchAvailable bool   `json:"search_available"`
	IndexLoaded     bool   `json:"index_loaded"`
	IndexSize       int    `json:"index_size"`
	Dimension       int    `json:"dimension"`
	Records         int64  `json:"records"`
	ArtifactBackend string `json:"artifact_backend"`
	DiskUsageBytes  *int64 `json:"disk_usage_bytes,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = inspect local storage and artifacts)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status *statusResponse
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = localStatus(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := writeStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func localStatus(configPath string) (*statusResponse, error) {
	cfg, logger, _ := setup(configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	count, err := components.Storage.CountRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	status := &statusResponse{
		Mode:            components.Engine.Mode(),
		SearchAvailable: components.Engine.SearchAvailable(),
		IndexLoaded:     components.Engine.IndexLoaded(),
		IndexSize:       components.Engine.IndexSize(),
		Dimension:       components.Engine.Dimension(),
		Records:         count,
		ArtifactBackend: cfg.Artifacts.Backend,
	}
	if usage, err := storage.DiskUsage(cfg.Storage.DatabasePath, cfg.LocalArtifactDir()); err == nil {
		total := usage.Total()
		status.DiskUsageBytes = &total
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func writeStatus(w io.Writer, status *statusResponse, format cli.SearchOutputFormat) error {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "mode:               %s\n", status.Mode)
	fmt.Fprintf(w, "search_available:   %t\n", status.SearchAvailable)
	fmt.Fprintf(w, "index_loaded:       %t\n", status.IndexLoaded)
	fmt.Fprintf(w, "index_size:         %d   # vectors in the loaded index\n", status.IndexSize)
	fmt.Fprintf(w, "dimension:          %d\n", status.Dimension)
	fmt.Fprintf(w, "records:            %d   # rows in the metadata database\n", status.Records)
	fmt.Fprintf(w, "artifact_backend:   %s\n", status.ArtifactBackend)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + local artifacts\n", *status.DiskUsageBytes)
	}
	return nil
}

func printUsage() {
	fmt.Println(`statsearch - Semantic search over statistical publications

Usage:
  statsearch server [flags]           Start the HTTP server
  statsearch build [flags]            Embed the corpus and persist the index artifacts
  statsearch import [flags]           Load the corpus JSON into an empty database
  statsearch search [flags] <query>   Search records
  statsearch status [flags]           Show index and storage status
  statsearch version                  Show version
  statsearch help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/statsearch/config.yaml)
  --debug            Enable debug logging
  --fast             Start without the model and index (search disabled)

Build Flags:
  --config string    Config file path
  --corpus string    Corpus JSON file (default: records from the database)
  --mock             Build with the mock embedder if the model cannot be loaded

Import Flags:
  --config string    Config file path
  --corpus string    Corpus JSON file (default: storage.corpus_path)

Search Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL. Empty loads the index locally.
  --limit int        Number of results (default: 5)
  --raw              Print ids and distances only (local mode)
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL. Empty inspects local storage.
  --output string    Output format: text or json (default: text)

Examples:
  statsearch import
  statsearch build
  statsearch server
  statsearch search "unemployment rate"
  statsearch search --output json --limit 10 inflation
  statsearch status --server http://localhost:8000`)
}
