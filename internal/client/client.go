// Package client talks to the billnote HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zombor/billnote/internal/candidate"
	"github.com/zombor/billnote/internal/extraction"
	"github.com/zombor/billnote/internal/note"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrServer       = errors.New("server error")
)

// DefaultTimeout bounds every request. Extraction can take a while.
const DefaultTimeout = 2 * time.Minute

// Client is an API client authenticated with a bearer token
type Client struct {
	http *resty.Client
}

// Option configures a Client
type Option func(*resty.Client)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithTransport sends requests through rt
func WithTransport(rt http.RoundTripper) Option {
	return func(c *resty.Client) { c.SetTransport(rt) }
}

// New creates a client for the API at baseURL
func New(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api address: %w", err)
	}

	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(DefaultTimeout).
		SetAuthToken(strings.TrimSpace(token)).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{http: rc}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// apiError is the body of a non-extraction error response
type apiError struct {
	Error string `json:"error"`
}

func mapHTTPError(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))
	var ae apiError
	if err := json.Unmarshal(resp.Body(), &ae); err == nil && ae.Error != "" {
		body = ae.Error
	}
	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}

	switch resp.StatusCode() {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, body)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, body)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body)
	default:
		if resp.StatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", ErrServer, body)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode(), body)
	}
}

// Extract runs an extraction. Failures reported by the server are returned
// as *extraction.Error.
func (c *Client) Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error) {
	req.ImageBase64 = extraction.NormalizeDataURI(req.ImageBase64)

	var out extraction.Response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/api/receipts/extract")
	if err != nil {
		return nil, fmt.Errorf("extract request: %w", err)
	}
	if out.Error != nil && out.Error.Code != "" {
		return nil, out.Error
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	if !out.Success || out.Data == nil {
		return nil, &extraction.Error{Code: extraction.CodeExtractionFailed, Message: "Malformed extraction response"}
	}
	return &extraction.Result{
		Candidate:        out.Data,
		Confidence:       out.Confidence,
		ProcessingTimeMs: out.ProcessingTimeMs,
		AutoConfirm:      out.AutoConfirm,
		ArtifactKey:      out.ArtifactKey,
	}, nil
}

// Reconcile asks the server to replay edits on a candidate
func (c *Client) Reconcile(ctx context.Context, cand *candidate.Candidate, edits candidate.Edits) (*candidate.Candidate, error) {
	var out candidate.Candidate
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(candidate.Reconciliation{Candidate: cand, Edits: edits}).
		SetResult(&out).
		Post("/api/receipts/reconcile")
	if err != nil {
		return nil, fmt.Errorf("reconcile request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// Commit persists a reviewed receipt
func (c *Client) Commit(ctx context.Context, req note.CommitRequest) (*note.NoteWithItems, error) {
	var out note.NoteWithItems
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/notes/commit")
	if err != nil {
		return nil, fmt.Errorf("commit request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNotes returns one page of notes
func (c *Client) ListNotes(ctx context.Context, q note.ListQuery) (*note.ListResult, error) {
	params := map[string]string{}
	if q.Page > 0 {
		params["page"] = strconv.Itoa(q.Page)
	}
	if q.PageSize > 0 {
		params["pageSize"] = strconv.Itoa(q.PageSize)
	}
	for k, v := range map[string]string{
		"category": q.Category,
		"search":   q.Search,
		"dateFrom": q.DateFrom,
		"dateTo":   q.DateTo,
	} {
		if v != "" {
			params[k] = v
		}
	}

	var out note.ListResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/api/notes")
	if err != nil {
		return nil, fmt.Errorf("list notes request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetNote returns a note with its items
func (c *Client) GetNote(ctx context.Context, id string) (*note.NoteWithItems, error) {
	var out note.NoteWithItems
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/api/notes/{id}")
	if err != nil {
		return nil, fmt.Errorf("get note request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteNote deletes a note and its items
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Delete("/api/notes/{id}")
	if err != nil {
		return fmt.Errorf("delete note request: %w", err)
	}
	return mapHTTPError(resp)
}

// Summary returns spend per category and month
func (c *Client) Summary(ctx context.Context, q note.SummaryQuery) (*note.Summary, error) {
	params := map[string]string{}
	for k, v := range map[string]string{
		"dateFrom": q.DateFrom,
		"dateTo":   q.DateTo,
		"currency": q.Currency,
	} {
		if v != "" {
			params[k] = v
		}
	}

	var out note.Summary
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/api/reports/summary")
	if err != nil {
		return nil, fmt.Errorf("summary request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	return &out, nil
}
