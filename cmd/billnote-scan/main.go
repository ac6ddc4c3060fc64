// Command billnote-scan extracts a receipt image, prints the result for
// review and commits it as a note, either against a billnote server or
// directly on a local database.
package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/billnote/internal/artifact"
	"github.com/zombor/billnote/internal/auth"
	"github.com/zombor/billnote/internal/candidate"
	"github.com/zombor/billnote/internal/client"
	"github.com/zombor/billnote/internal/extraction"
	"github.com/zombor/billnote/internal/logging"
	"github.com/zombor/billnote/internal/money"
	"github.com/zombor/billnote/internal/note"
	"github.com/zombor/billnote/internal/scanning"
	"github.com/zombor/billnote/internal/session"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("billnote-scan")
	var (
		apiURL      = fs.StringLong("api", "", "billnote server address; empty works on --db directly")
		token       = fs.StringLong("token", "", "Bearer token for --api")
		dbPath      = fs.StringLong("db", "billnote.db", "Database file path for local mode")
		storagePath = fs.StringLong("storage", "./receipts", "Directory for original receipt images in local mode")
		user        = fs.StringLong("user", "", "User id owning notes in local mode")
		scannerType = fs.StringLong("scanner", "gemini", "Scanner type for local mode: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name")
		language    = fs.StringLong("language", "", "Preferred receipt language")
		basic       = fs.BoolLong("basic", "Ask the provider for header fields only")
		title       = fs.StringLong("title", "", "Note title; defaults to the store name")
		category    = fs.StringLong("category", "", "Note category")
		notes       = fs.StringLong("notes", "", "Extra note text")
		drop        = fs.StringLong("delete", "", "Comma separated item numbers to remove before committing")
		dryRun      = fs.BoolLong("dry-run", "Print the extracted receipt without committing it")
		logLevel    = fs.StringLong("log-level", "warn", "Log level: debug, info, warn, error")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILLNOTE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}
	logging.Setup(*logLevel, "text")

	args := fs.GetArgs()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: billnote-scan [flags] <receipt image>\n")
		os.Exit(2)
	}
	path := args[0]

	drops, err := parseItemNumbers(*drop)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: --delete: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		extractor session.Extractor
		committer session.Committer
	)
	if *apiURL != "" {
		api, err := client.New(*apiURL, *token)
		if err != nil {
			slog.Error("Failed to create API client", "error", err)
			os.Exit(1)
		}
		extractor, committer = api, api
	} else {
		local, closeLocal, err := openLocal(ctx, localConfig{
			dbPath:      *dbPath,
			storagePath: *storagePath,
			user:        *user,
			scannerType: *scannerType,
			geminiKey:   *geminiKey,
			geminiModel: *geminiModel,
			ollamaURL:   *ollamaURL,
			ollamaModel: *ollamaModel,
		})
		if err != nil {
			slog.Error("Failed to open local store", "error", err)
			os.Exit(1)
		}
		defer closeLocal()
		extractor, committer = local, local
	}

	opts := []session.Option{
		session.WithOnChange(func(snap session.Snapshot) {
			slog.Debug("Scan progress", "state", snap.State, "progress", snap.Progress)
		}),
	}
	if *language != "" || *basic {
		o := extraction.Options{PreferredLanguage: *language}
		if *basic {
			o.DetectionMode = scanning.DetectionBasic
		}
		opts = append(opts, session.WithOptions(o))
	}
	sess := session.New(extractor, committer, opts...)

	f, err := os.Open(path)
	if err != nil {
		slog.Error("Failed to open receipt", "path", path, "error", err)
		os.Exit(1)
	}
	err = sess.Accept(ctx, f, contentTypeFor(path))
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "extraction failed: %s\n", sess.Snapshot().Reason)
		os.Exit(1)
	}

	if err := sess.Review(); err != nil {
		slog.Error("Failed to start review", "error", err)
		os.Exit(1)
	}
	for _, n := range drops {
		if err := sess.Edit(candidate.DeleteItem{Index: n - 1}); err != nil {
			fmt.Fprintf(os.Stderr, "error: cannot delete item %d: %v\n", n, err)
			os.Exit(2)
		}
	}

	snap := sess.Snapshot()
	render(os.Stdout, snap.Candidate, snap.Confidence)
	if *dryRun {
		return
	}

	saved, err := sess.Commit(ctx, note.Metadata{Title: *title, Category: *category, Notes: *notes})
	if err != nil {
		fmt.Fprintf(os.Stderr, "commit failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nSaved note %s: %s\n", saved.ID, money.FormatDecimal(saved.TotalAmount, saved.Currency))
}

// parseItemNumbers parses 1-based item numbers and returns them highest first
// so deleting one does not shift the next.
func parseItemNumbers(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid item number %q", part)
		}
		out = append(out, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return ""
}

func render(w io.Writer, c *candidate.Candidate, confidence float64) {
	fmt.Fprintf(w, "%s", c.StoreName)
	if c.Date != nil {
		fmt.Fprintf(w, "  %s", *c.Date)
	}
	fmt.Fprintf(w, "  (confidence %.0f%%, %s)\n\n", confidence*100, candidate.ConfidenceBand(confidence))

	low := map[int]bool{}
	for _, i := range c.LowConfidence(candidate.LowConfidenceThreshold) {
		low[i] = true
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tItem\tQty\tUnit\tTotal\t\t")
	for i, item := range c.Items {
		flag := ""
		if low[i] {
			flag = "check"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t\n",
			i+1,
			item.Name,
			strconv.FormatFloat(item.Quantity, 'f', -1, 64),
			money.Format(item.UnitPrice, c.Currency),
			money.Format(item.TotalPrice, c.Currency),
			flag,
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nSubtotal  %s\n", money.Format(c.Subtotal, c.Currency))
	if c.Tax != nil {
		fmt.Fprintf(w, "Tax       %s\n", money.Format(*c.Tax, c.Currency))
	}
	if c.Tip != nil {
		fmt.Fprintf(w, "Tip       %s\n", money.Format(*c.Tip, c.Currency))
	}
	fmt.Fprintf(w, "Total     %s\n", money.Format(c.Total, c.Currency))
	if c.TotalMismatch() {
		fmt.Fprintf(w, "          receipt says %s\n", money.Format(*c.ReportedTotal, c.Currency))
	}
}

type localConfig struct {
	dbPath      string
	storagePath string
	user        string
	scannerType string
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
}

// openLocal wires extraction and notes in-process. The returned func waits
// for queued image uploads and closes everything.
func openLocal(ctx context.Context, cfg localConfig) (session.Local, func(), error) {
	id := auth.Identity{UserID: cfg.user}
	if !id.Valid() {
		return session.Local{}, nil, fmt.Errorf("--user is required without --api")
	}

	var (
		scanner scanning.Scanner
		err     error
	)
	switch cfg.scannerType {
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return session.Local{}, nil, fmt.Errorf("gemini api key is required")
		}
		scanner, err = scanning.NewGemini(ctx, apiKey, cfg.geminiModel)
	case "ollama":
		scanner, err = scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	default:
		err = fmt.Errorf("invalid scanner type %q", cfg.scannerType)
	}
	if err != nil {
		return session.Local{}, nil, err
	}

	db, err := note.NewBoltDB(cfg.dbPath)
	if err != nil {
		scanner.Close()
		return session.Local{}, nil, err
	}
	store, err := artifact.NewLocalStore(cfg.storagePath)
	if err != nil {
		scanner.Close()
		db.Close()
		return session.Local{}, nil, err
	}
	uploader := artifact.NewUploader(store, 8)

	local := session.Local{
		Extraction: extraction.New(scanner, extraction.WithArtifacts(uploader)),
		Notes:      note.NewService(db, note.WithArtifacts(uploader)),
		Identity:   id,
	}
	closeAll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := uploader.Close(ctx); err != nil {
			slog.Warn("Pending uploads were abandoned", "error", err)
		}
		scanner.Close()
		db.Close()
	}
	return local, closeAll, nil
}
