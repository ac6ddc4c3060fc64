package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/billnote/internal/artifact"
	"github.com/zombor/billnote/internal/auth"
	"github.com/zombor/billnote/internal/extraction"
	"github.com/zombor/billnote/internal/logging"
	"github.com/zombor/billnote/internal/metrics"
	"github.com/zombor/billnote/internal/note"
	"github.com/zombor/billnote/internal/scanning"
	"github.com/zombor/billnote/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("billnote")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "billnote.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./receipts", "Directory for original receipt images")
		s3Bucket     = fs.StringLong("s3-bucket", "", "Store original images in this S3 bucket instead of --storage")
		s3Region     = fs.StringLong("s3-region", "us-east-1", "S3 region")
		s3Endpoint   = fs.StringLong("s3-endpoint", "", "S3 compatible endpoint (MinIO, R2)")
		s3AccessKey  = fs.StringLong("s3-access-key", "", "S3 access key")
		s3SecretKey  = fs.StringLong("s3-secret-key", "", "S3 secret key")
		uploadQueue  = fs.IntLong("upload-queue", 64, "Pending original image uploads before new ones are dropped")
		scannerType  = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		extractTO    = fs.DurationLong("extract-timeout", 0, "Abort extractions after this long (0 waits for the provider)")
		autoConfirm  = fs.Float64Long("auto-confirm", 0.9, "Default confidence at or above which a receipt may skip review")
		language     = fs.StringLong("language", "vi", "Default preferred receipt language")
		strictTotals = fs.BoolLong("strict-totals", "Always compute item totals from amount and unit price")
		jwtSecret    = fs.StringLong("jwt-secret", "", "HS256 secret for bearer tokens")
		jwtIssuer    = fs.StringLong("jwt-issuer", auth.DefaultIssuer, "Expected token issuer")
		issueToken   = fs.StringLong("issue-token", "", "Print a bearer token for this user id and exit")
		tokenTTL     = fs.DurationLong("token-ttl", 30*24*time.Hour, "Lifetime of tokens printed by --issue-token")
		corsOrigin   = fs.StringLong("cors-origin", "*", "Allowed CORS origin")
		logLevel     = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		logFormat    = fs.StringLong("log-format", "text", "Log format: text or json")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILLNOTE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logging.Setup(*logLevel, *logFormat)

	verifier, err := auth.NewVerifier(*jwtSecret, *jwtIssuer)
	if err != nil {
		slog.Error("Failed to initialize authentication. Set --jwt-secret or BILLNOTE_JWT_SECRET", "error", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		token, err := verifier.Sign(*issueToken, *tokenTTL)
		if err != nil {
			slog.Error("Failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	m := metrics.New()

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := note.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			// extraction answers API_NOT_CONFIGURED, notes keep working
			slog.Warn("No Gemini API key. Set --gemini-key flag or GEMINI_API_KEY environment variable to enable extraction")
			break
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(ctx, apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	if scanner != nil {
		defer scanner.Close()
	}

	// Initialize storage
	var store artifact.Store
	if *s3Bucket != "" {
		slog.Info("Initializing S3 storage...", "bucket", *s3Bucket, "endpoint", *s3Endpoint)
		store, err = artifact.NewS3Store(artifact.S3Config{
			Bucket:    *s3Bucket,
			Region:    *s3Region,
			Endpoint:  *s3Endpoint,
			AccessKey: *s3AccessKey,
			SecretKey: *s3SecretKey,
		})
	} else {
		slog.Info("Initializing storage...", "path", *storagePath)
		store, err = artifact.NewLocalStore(*storagePath)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	uploader := artifact.NewUploader(store, *uploadQueue,
		artifact.WithResultHook(func(_ artifact.Task, err error) { m.ArtifactUpload(err) }),
	)

	defaults := extraction.DefaultConfig()
	defaults.AutoConfirmThreshold = *autoConfirm
	defaults.PreferredLanguage = *language

	extractor := extraction.New(scanner,
		extraction.WithArtifacts(uploader),
		extraction.WithMetrics(m),
		extraction.WithDefaults(defaults),
		extraction.WithTimeout(*extractTO),
	)
	notes := note.NewService(db,
		note.WithArtifacts(uploader),
		note.WithMetrics(m),
		note.WithStrictTotals(*strictTotals),
	)

	srv := server.New(notes, extractor, verifier,
		server.WithMetrics(m),
		server.WithAllowedOrigin(*corsOrigin),
	)

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
	if err := uploader.Close(shutdownCtx); err != nil {
		slog.Warn("Pending uploads were abandoned", "error", err)
	}
}
