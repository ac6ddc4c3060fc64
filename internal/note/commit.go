package note

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/billnote/internal/candidate"
	"github.com/zombor/billnote/internal/money"
	"github.com/zombor/billnote/internal/scanning"
)

// CommitRequest turns a reviewed receipt into a note with items in one call
type CommitRequest struct {
	Title     string      `json:"title" validate:"required,max=200"`
	Category  string      `json:"category" validate:"max=100"`
	Date      string      `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StoreName string      `json:"store_name" validate:"max=200"`
	Notes     string      `json:"notes" validate:"max=4000"`
	Currency  string      `json:"currency" validate:"omitempty,oneof=VND USD EUR vnd usd eur"`
	Items     []ItemInput `json:"items" validate:"required,min=1,dive"`

	// Image is the original receipt. It is stored after the note exists and
	// a storage failure never fails the commit.
	Image            []byte `json:"image,omitempty"`
	ImageContentType string `json:"image_content_type,omitempty"`
}

// Metadata is what the reviewer adds to a candidate before committing it
type Metadata struct {
	Title    string
	Category string
	Notes    string
}

// Commit creates the note, then each item in order with a recompute after
// every insert. If an item cannot be inserted the note is deleted again.
func (s *Service) Commit(owner string, req CommitRequest) (result *NoteWithItems, err error) {
	defer func() { s.metrics.Commit(err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	for i, in := range req.Items {
		if strings.TrimSpace(in.Name) == "" {
			return nil, fmt.Errorf("%w: item %d has no name", ErrInvalidInput, i)
		}
	}

	n, err := s.CreateNote(owner, CreateNoteInput{
		Title:     req.Title,
		Category:  req.Category,
		Date:      req.Date,
		StoreName: req.StoreName,
		Notes:     req.Notes,
		Currency:  req.Currency,
	})
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(req.Items))
	for i, in := range req.Items {
		if in.StoreName == "" {
			in.StoreName = n.StoreName
		}
		if in.PurchaseDate == "" {
			in.PurchaseDate = n.Date
		}
		item, err := s.insertItem(n, in, i)
		if err == nil {
			var total decimal.Decimal
			total, err = s.recompute(n.ID)
			n.TotalAmount = total
		}
		if err != nil {
			s.rollback(n.ID)
			return nil, fmt.Errorf("committing item %d: %w", i, err)
		}
		items = append(items, item)
	}

	// refresh UpdatedAt written by the last recompute
	if stored, err := s.db.GetNote(n.ID); err == nil {
		n = stored
	}

	if len(req.Image) > 0 {
		ct := req.ImageContentType
		if ct == "" {
			ct = scanning.DetectContentType(req.Image)
		}
		s.enqueueArtifact(owner, n.ID, req.Image, ct, scanning.Extension(ct))
	}

	slog.Info("Committed note", "note_id", n.ID, "items", len(items), "total", n.TotalAmount.String())
	return &NoteWithItems{Note: n, Items: items}, nil
}

func (s *Service) rollback(noteID string) {
	if err := s.db.DeleteNote(noteID); err != nil && !errors.Is(err, ErrNotFound) {
		slog.Error("Failed to remove partially committed note", "note_id", noteID, "error", err)
	}
}

// FromCandidate builds a commit request from a reviewed candidate. Tax and
// tip are kept in the notes text; the note total is the sum of its items.
func FromCandidate(c *candidate.Candidate, meta Metadata) (CommitRequest, error) {
	if c == nil {
		return CommitRequest{}, fmt.Errorf("%w: no candidate", candidate.ErrInvalidCandidate)
	}
	if err := c.Validate(); err != nil {
		return CommitRequest{}, err
	}

	currency := c.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = strings.TrimSpace(c.StoreName)
	}

	var date string
	if c.Date != nil {
		if _, err := time.Parse(DateLayout, *c.Date); err == nil {
			date = *c.Date
		}
	}

	var notes []string
	if strings.TrimSpace(meta.Notes) != "" {
		notes = append(notes, strings.TrimSpace(meta.Notes))
	}
	if c.StoreAddress != nil && *c.StoreAddress != "" {
		notes = append(notes, "Address: "+*c.StoreAddress)
	}
	if c.Tax != nil && *c.Tax != 0 {
		notes = append(notes, "Tax: "+money.Format(*c.Tax, currency))
	}
	if c.Tip != nil && *c.Tip != 0 {
		notes = append(notes, "Tip: "+money.Format(*c.Tip, currency))
	}

	req := CommitRequest{
		Title:     title,
		Category:  meta.Category,
		Date:      date,
		StoreName: strings.TrimSpace(c.StoreName),
		Notes:     strings.Join(notes, "\n"),
		Currency:  string(currency),
		Items:     make([]ItemInput, 0, len(c.Items)),
	}
	for _, item := range c.Items {
		amount := decimal.NewFromFloat(item.Quantity)
		unitPrice := money.FromFloat(item.UnitPrice, currency)
		in := ItemInput{
			Name:      strings.TrimSpace(item.Name),
			Amount:    &amount,
			UnitPrice: &unitPrice,
		}
		if item.Category != nil {
			in.Category = *item.Category
		}
		if item.Description != nil {
			in.Notes = *item.Description
		}
		req.Items = append(req.Items, in)
	}
	return req, nil
}
