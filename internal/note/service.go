package note

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/billnote/internal/artifact"
	"github.com/zombor/billnote/internal/metrics"
	"github.com/zombor/billnote/internal/money"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// IDGenerator generates unique IDs for notes and items
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// ArtifactQueue accepts best-effort uploads of original receipt images
type ArtifactQueue interface {
	Enqueue(task artifact.Task) bool
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// Service handles note and item operations for an owner
type Service struct {
	db           DB
	validate     *validator.Validate
	idGenerator  IDGenerator
	timeSource   TimeSource
	artifacts    ArtifactQueue
	metrics      *metrics.Metrics
	strictTotals bool
}

// Option configures a Service
type Option func(*Service)

// WithArtifacts stores original images committed with a receipt
func WithArtifacts(q ArtifactQueue) Option {
	return func(s *Service) { s.artifacts = q }
}

// WithMetrics records commits and recomputes
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithStrictTotals requires amount and unit price on every item and
// ignores client supplied totals
func WithStrictTotals(strict bool) Option {
	return func(s *Service) { s.strictTotals = strict }
}

// NewService creates a new Service with UUID ids and the system clock
func NewService(db DB, opts ...Option) *Service {
	return NewServiceWithDeps(db, uuidGenerator{}, systemTime{}, opts...)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, idGen IDGenerator, timeSrc TimeSource, opts ...Option) *Service {
	s := &Service{
		db:          db,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// ownedNote loads a note and hides it from anyone but its owner
func (s *Service) ownedNote(owner, id string) (*Note, error) {
	n, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	if n.AddedBy != owner {
		return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	return n, nil
}

func (s *Service) recompute(noteID string) (decimal.Decimal, error) {
	total, err := s.db.RecomputeTotal(noteID, s.timeSource.Now())
	if err != nil {
		return decimal.Zero, fmt.Errorf("recomputing note total: %w", err)
	}
	s.metrics.Recompute()
	return total, nil
}

// ListNotes returns one page of the owner's notes, newest first
func (s *Service) ListNotes(owner string, q ListQuery) (*ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	notes, err := s.db.ListNotes(owner)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	filtered := make([]*Note, 0, len(notes))
	for _, n := range notes {
		if q.Category != "" && n.Category != q.Category {
			continue
		}
		if q.DateFrom != "" && n.Date < q.DateFrom {
			continue
		}
		if q.DateTo != "" && n.Date > q.DateTo {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Notes), search) {
			continue
		}
		filtered = append(filtered, n)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Date != filtered[j].Date {
			return filtered[i].Date > filtered[j].Date
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	result := &ListResult{
		Notes:    []*Note{},
		Total:    len(filtered),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	start := (q.Page - 1) * q.PageSize
	if start < len(filtered) {
		end := min(start+q.PageSize, len(filtered))
		result.Notes = filtered[start:end]
	}
	return result, nil
}

// CreateNote creates an empty note with a zero total
func (s *Service) CreateNote(owner string, in CreateNoteInput) (*Note, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	currency, err := money.ParseCurrency(in.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.timeSource.Now()
	date := in.Date
	if date == "" {
		date = now.Format(DateLayout)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = DefaultCategory
	}

	n := &Note{
		ID:          s.idGenerator.Generate(),
		Title:       strings.TrimSpace(in.Title),
		Category:    category,
		Date:        date,
		StoreName:   strings.TrimSpace(in.StoreName),
		Notes:       in.Notes,
		Currency:    currency,
		TotalAmount: decimal.Zero,
		AddedBy:     owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if n.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	if err := s.db.SaveNote(n); err != nil {
		return nil, fmt.Errorf("saving note: %w", err)
	}
	return n, nil
}

// GetNote returns a note with its items
func (s *Service) GetNote(owner, id string) (*NoteWithItems, error) {
	n, err := s.ownedNote(owner, id)
	if err != nil {
		return nil, err
	}
	items, err := s.db.ListItems(id)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return &NoteWithItems{Note: n, Items: items}, nil
}

// UpdateNote changes the supplied fields of a note. The total is not editable.
func (s *Service) UpdateNote(owner, id string, in UpdateNoteInput) (*Note, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	n, err := s.ownedNote(owner, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
		}
		n.Title = title
	}
	if in.Category != nil {
		n.Category = strings.TrimSpace(*in.Category)
		if n.Category == "" {
			n.Category = DefaultCategory
		}
	}
	if in.Date != nil {
		n.Date = *in.Date
	}
	if in.StoreName != nil {
		n.StoreName = strings.TrimSpace(*in.StoreName)
	}
	if in.Notes != nil {
		n.Notes = *in.Notes
	}
	n.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveNote(n); err != nil {
		return nil, fmt.Errorf("saving note: %w", err)
	}
	return n, nil
}

// DeleteNote removes a note and all of its items
func (s *Service) DeleteNote(owner, id string) error {
	if _, err := s.ownedNote(owner, id); err != nil {
		return err
	}
	if err := s.db.DeleteNote(id); err != nil {
		return fmt.Errorf("deleting note: %w", err)
	}
	return nil
}

// AddItem appends an item to a note and recomputes the note total
func (s *Service) AddItem(owner, noteID string, in ItemInput) (*Item, error) {
	n, err := s.ownedNote(owner, noteID)
	if err != nil {
		return nil, err
	}
	items, err := s.db.ListItems(noteID)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	item, err := s.insertItem(n, in, nextPosition(items))
	if err != nil {
		return nil, err
	}
	if _, err := s.recompute(noteID); err != nil {
		return nil, err
	}
	return item, nil
}

func nextPosition(items []*Item) int {
	pos := 0
	for _, item := range items {
		if item.Position >= pos {
			pos = item.Position + 1
		}
	}
	return pos
}

func (s *Service) insertItem(n *Note, in ItemInput, position int) (*Item, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	amount, unitPrice, total, err := s.price(n.Currency, in.Amount, in.UnitPrice, in.TotalPrice, nil)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	item := &Item{
		ID:           s.idGenerator.Generate(),
		NoteID:       n.ID,
		Name:         strings.TrimSpace(in.Name),
		Amount:       amount,
		UnitPrice:    unitPrice,
		TotalPrice:   total,
		Category:     strings.TrimSpace(in.Category),
		PurchaseDate: in.PurchaseDate,
		StoreName:    strings.TrimSpace(in.StoreName),
		Notes:        in.Notes,
		Position:     position,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.SaveItem(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}
	return item, nil
}

// price resolves amount, unit price and line total for a new or updated item.
// existing is nil for inserts.
func (s *Service) price(c money.Currency, amount, unitPrice, total *decimal.Decimal, existing *Item) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	for _, v := range []*decimal.Decimal{amount, unitPrice, total} {
		if v != nil && v.IsNegative() {
			return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: amounts must not be negative", ErrInvalidInput)
		}
	}

	if existing == nil && s.strictTotals && (amount == nil || unitPrice == nil) {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: amount and unit_price are required", ErrInvalidInput)
	}

	var a, u, t decimal.Decimal
	if existing != nil {
		a, u, t = existing.Amount, existing.UnitPrice, existing.TotalPrice
	} else {
		a, u = decimal.NewFromInt(1), decimal.Zero
	}
	if amount != nil {
		a = *amount
	}
	if unitPrice != nil {
		u = *unitPrice
	}

	switch {
	case amount != nil && unitPrice != nil:
		t = money.LineTotalExact(a, u, c)
	case total != nil && !s.strictTotals:
		t = money.Round(*total, c)
	case existing == nil || amount != nil || unitPrice != nil || s.strictTotals:
		t = money.LineTotalExact(a, u, c)
	}
	return a, u, t, nil
}

// UpdateItem changes the supplied fields of an item and recomputes the note total
func (s *Service) UpdateItem(owner, noteID, itemID string, in UpdateItemInput) (*Item, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	n, err := s.ownedNote(owner, noteID)
	if err != nil {
		return nil, err
	}
	item, err := s.db.GetItem(noteID, itemID)
	if err != nil {
		return nil, err
	}

	amount, unitPrice, total, err := s.price(n.Currency, in.Amount, in.UnitPrice, in.TotalPrice, item)
	if err != nil {
		return nil, err
	}
	item.Amount, item.UnitPrice, item.TotalPrice = amount, unitPrice, total

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		item.Name = name
	}
	if in.Category != nil {
		item.Category = strings.TrimSpace(*in.Category)
	}
	if in.PurchaseDate != nil {
		item.PurchaseDate = *in.PurchaseDate
	}
	if in.StoreName != nil {
		item.StoreName = strings.TrimSpace(*in.StoreName)
	}
	if in.Notes != nil {
		item.Notes = *in.Notes
	}
	item.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveItem(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}
	if _, err := s.recompute(noteID); err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item and recomputes the note total
func (s *Service) DeleteItem(owner, noteID, itemID string) error {
	if _, err := s.ownedNote(owner, noteID); err != nil {
		return err
	}
	if err := s.db.DeleteItem(noteID, itemID); err != nil {
		return err
	}
	if _, err := s.recompute(noteID); err != nil {
		return err
	}
	return nil
}

// enqueueArtifact schedules a best-effort upload of the original image and
// records its key on the note once stored
func (s *Service) enqueueArtifact(owner, noteID string, data []byte, contentType, ext string) {
	if s.artifacts == nil || len(data) == 0 {
		return
	}
	key := artifact.Key(owner, s.timeSource.Now(), ext)
	s.artifacts.Enqueue(artifact.Task{
		Key:         key,
		Data:        data,
		ContentType: contentType,
		UserID:      owner,
		Done: func(err error) {
			if err != nil {
				return
			}
			if err := s.db.SetArtifactKey(noteID, key); err != nil {
				slog.Warn("Failed to link original image to note", "note_id", noteID, "key", key, "error", err)
			}
		},
	})
}
