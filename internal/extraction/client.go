// Package extraction turns a receipt image into a reviewable candidate.
//
// Extract validates the payload before any provider call, then maps the
// provider output onto a candidate without inventing values for fields the
// provider could not read. Storing the original image is best-effort and
// never fails an extraction.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/zombor/billnote/internal/artifact"
	"github.com/zombor/billnote/internal/auth"
	"github.com/zombor/billnote/internal/candidate"
	"github.com/zombor/billnote/internal/metrics"
	"github.com/zombor/billnote/internal/money"
	"github.com/zombor/billnote/internal/scanning"
)

// ArtifactQueue accepts best-effort uploads
type ArtifactQueue interface {
	Enqueue(task artifact.Task) bool
}

// Result is a successful extraction
type Result struct {
	Candidate        *candidate.Candidate
	Confidence       float64
	ProcessingTimeMs int64
	AutoConfirm      bool
	ArtifactKey      string
}

// Response converts the result to its wire shape
func (r *Result) Response() Response {
	return Response{
		Success:          true,
		Data:             r.Candidate,
		ProcessingTimeMs: r.ProcessingTimeMs,
		Confidence:       r.Confidence,
		AutoConfirm:      r.AutoConfirm,
		ArtifactKey:      r.ArtifactKey,
	}
}

// Client runs extractions against a vision provider
type Client struct {
	scanner   scanning.Scanner
	artifacts ArtifactQueue
	metrics   *metrics.Metrics
	validate  *validator.Validate
	defaults  Config
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithArtifacts stores original images when the config asks for it
func WithArtifacts(q ArtifactQueue) Option {
	return func(c *Client) { c.artifacts = q }
}

// WithMetrics records extraction outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDefaults sets the config used when a request carries none
func WithDefaults(cfg Config) Option {
	return func(c *Client) { c.defaults = cfg }
}

// WithTimeout bounds each provider call. Zero waits for the provider.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client. A nil scanner yields API_NOT_CONFIGURED for every
// well-formed request.
func New(scanner scanning.Scanner, opts ...Option) *Client {
	c := &Client{
		scanner:  scanner,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		defaults: DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract runs one extraction for id. Every failure is an *Error.
func (c *Client) Extract(ctx context.Context, id auth.Identity, req Request) (*Result, error) {
	start := c.now()
	result, err := c.extract(ctx, id, req)
	if err != nil {
		e := AsError(err)
		c.metrics.Extraction(string(e.Code), 0)
		slog.Warn("Receipt extraction failed", "user_id", id.UserID, "code", e.Code, "details", e.Details)
		return nil, e
	}
	elapsed := c.now().Sub(start)
	result.ProcessingTimeMs = elapsed.Milliseconds()
	c.metrics.Extraction("OK", elapsed)
	slog.Info("Receipt extracted", "user_id", id.UserID, "items", len(result.Candidate.Items),
		"confidence", result.Confidence, "duration_ms", result.ProcessingTimeMs)
	return result, nil
}

func (c *Client) extract(ctx context.Context, id auth.Identity, req Request) (*Result, error) {
	if !id.Valid() {
		return nil, newError(CodeUnauthorized, "Unauthorized", nil)
	}
	if req.ImageBase64 == "" {
		return nil, newError(CodeInvalidRequest, "Image data is required", nil)
	}

	cfg := c.defaults
	if req.Config != nil {
		cfg = *req.Config
	}
	if req.Options != nil {
		if req.Options.DetectionMode != "" {
			cfg.DetectionMode = req.Options.DetectionMode
		}
		if req.Options.PreferredLanguage != "" {
			cfg.PreferredLanguage = req.Options.PreferredLanguage
		}
	}
	if err := c.validate.Struct(cfg); err != nil {
		return nil, newError(CodeInvalidRequest, "Invalid processing config", err)
	}

	data, contentType, err := DecodeDataURI(req.ImageBase64)
	if err != nil {
		return nil, newError(CodeInvalidRequest, "Image data is not valid base64", err)
	}
	if len(data) == 0 {
		return nil, newError(CodeInvalidRequest, "Image data is required", nil)
	}
	if int64(len(data)) > cfg.MaximumImageSize {
		return nil, newError(CodeImageTooLarge,
			fmt.Sprintf("Image exceeds the maximum size of %d bytes", cfg.MaximumImageSize), nil)
	}

	if sniffed := scanning.DetectContentType(data); scanning.SupportedContentType(sniffed) {
		contentType = sniffed
	}
	if !scanning.SupportedContentType(contentType) {
		return nil, newError(CodeUnsupportedFormat, fmt.Sprintf("Unsupported image format: %s", contentType), nil)
	}

	if c.scanner == nil {
		return nil, newError(CodeAPINotConfigured, "Receipt extraction is not configured", nil)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	receipt, err := c.scanner.ScanReceipt(callCtx, data, contentType, scanning.Options{
		DetectionMode:       cfg.DetectionMode,
		PreferredLanguage:   cfg.PreferredLanguage,
		CategorySuggestions: cfg.StoreCategorySuggestions,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newError(CodeExtractionFailed, "Receipt extraction timed out", err)
		}
		return nil, newError(CodeExtractionFailed, "Failed to process receipt", err)
	}
	if receipt == nil {
		return nil, newError(CodeExtractionFailed, "Failed to process receipt", errors.New("empty provider response"))
	}

	cand, confidence := toCandidate(receipt)
	result := &Result{
		Candidate:   cand,
		Confidence:  confidence,
		AutoConfirm: confidence >= cfg.AutoConfirmThreshold && len(cand.Items) > 0,
	}

	if cfg.StoreOriginalImage {
		result.ArtifactKey = c.storeOriginal(id, data, contentType)
	}
	return result, nil
}

// storeOriginal enqueues the image and returns its key, or "" when the
// upload was not accepted
func (c *Client) storeOriginal(id auth.Identity, data []byte, contentType string) string {
	if c.artifacts == nil {
		return ""
	}
	key := artifact.Key(id.UserID, c.now(), scanning.Extension(contentType))
	if !c.artifacts.Enqueue(artifact.Task{
		Key:         key,
		Data:        data,
		ContentType: contentType,
		UserID:      id.UserID,
	}) {
		return ""
	}
	return key
}

// toCandidate maps provider output onto a candidate. Missing item numbers
// become 0; a missing line total is derived when quantity and unit price
// were both read.
func toCandidate(d *scanning.ReceiptData) (*candidate.Candidate, float64) {
	currency := money.DefaultCurrency
	if d.Currency != nil {
		if parsed, err := money.ParseCurrency(*d.Currency); err == nil {
			currency = parsed
		} else {
			slog.Warn("Unsupported receipt currency, using default", "currency", *d.Currency, "default", currency)
		}
	}

	items := make([]candidate.Item, 0, len(d.Items))
	var scoreSum float64
	for _, it := range d.Items {
		item := candidate.Item{
			Name:            it.Name,
			Description:     it.Description,
			Quantity:        value(it.Quantity),
			UnitPrice:       value(it.UnitPrice),
			Category:        it.Category,
			ConfidenceScore: value(it.ConfidenceScore),
		}
		switch {
		case it.TotalPrice != nil:
			item.TotalPrice = *it.TotalPrice
		case it.Quantity != nil && it.UnitPrice != nil:
			item.TotalPrice = money.LineTotal(*it.Quantity, *it.UnitPrice)
		}
		scoreSum += item.ConfidenceScore
		items = append(items, item)
	}

	var confidence float64
	switch {
	case d.Confidence != nil:
		confidence = *d.Confidence
	case len(items) > 0:
		confidence = scoreSum / float64(len(items))
	}

	c := candidate.New(candidate.Candidate{
		StoreName:     d.StoreName,
		StoreAddress:  d.StoreAddress,
		Date:          d.Date,
		Time:          d.Time,
		Items:         items,
		Tax:           d.Tax,
		Tip:           d.Tip,
		Currency:      currency,
		Confidence:    confidence,
		PaymentMethod: d.PaymentMethod,
		ReceiptNumber: d.ReceiptNumber,
		MerchantID:    d.MerchantID,
		ReportedTotal: d.Total,
	})
	return c, confidence
}

func value(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
