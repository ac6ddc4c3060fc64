// Package note persists expense notes and their line items.
//
// A note's TotalAmount is never taken from the client: it is recomputed from
// the persisted items after every item insert, update or delete. Notes are
// visible only to the user who created them; any other caller gets ErrNotFound.
package note

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/billnote/internal/money"
)

var (
	// ErrNotFound covers both missing notes and notes owned by someone else
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput wraps validation failures
	ErrInvalidInput = errors.New("invalid input")
)

// DateLayout is the layout of Note.Date and Item.PurchaseDate
const DateLayout = "2006-01-02"

// DefaultCategory is used when a note is created without one
const DefaultCategory = "Khác"

// Categories are the spending categories offered to users
var Categories = []string{
	"Thực phẩm",
	"Nhà cửa",
	"Di chuyển",
	"Quần áo",
	"Giải trí",
	"Học tập",
	"Y tế",
	"Khác",
}

// Note is a persisted expense record
type Note struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
	StoreName   string          `json:"store_name,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Currency    money.Currency  `json:"currency"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AddedBy     string          `json:"added_by"`
	ArtifactKey string          `json:"artifact_key,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Item is a line item of a note
type Item struct {
	ID           string          `json:"id"`
	NoteID       string          `json:"note_id"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Category     string          `json:"category,omitempty"`
	PurchaseDate string          `json:"purchase_date,omitempty"`
	StoreName    string          `json:"store_name,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Position     int             `json:"position"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NoteWithItems is a note together with its items in display order
type NoteWithItems struct {
	*Note
	Items []*Item `json:"items"`
}

// CreateNoteInput creates an empty note
type CreateNoteInput struct {
	Title     string `json:"title" validate:"required,max=200"`
	Category  string `json:"category" validate:"max=100"`
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StoreName string `json:"store_name" validate:"max=200"`
	Notes     string `json:"notes" validate:"max=4000"`
	Currency  string `json:"currency" validate:"omitempty,oneof=VND USD EUR vnd usd eur"`
}

// UpdateNoteInput changes only the fields that are set
type UpdateNoteInput struct {
	Title     *string `json:"title" validate:"omitempty,min=1,max=200"`
	Category  *string `json:"category" validate:"omitempty,max=100"`
	Date      *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StoreName *string `json:"store_name" validate:"omitempty,max=200"`
	Notes     *string `json:"notes" validate:"omitempty,max=4000"`
}

// ItemInput creates an item. Missing amount defaults to 1 and missing unit
// price to 0. The total is amount * unit price when both are given; otherwise
// the supplied total is used unless strict totals are enabled.
type ItemInput struct {
	Name         string           `json:"name" validate:"required,max=200"`
	Amount       *decimal.Decimal `json:"amount"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	TotalPrice   *decimal.Decimal `json:"total_price"`
	Category     string           `json:"category" validate:"max=100"`
	PurchaseDate string           `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	StoreName    string           `json:"store_name" validate:"max=200"`
	Notes        string           `json:"notes" validate:"max=4000"`
}

// UpdateItemInput changes only the fields that are set
type UpdateItemInput struct {
	Name         *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Amount       *decimal.Decimal `json:"amount"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	TotalPrice   *decimal.Decimal `json:"total_price"`
	Category     *string          `json:"category" validate:"omitempty,max=100"`
	PurchaseDate *string          `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	StoreName    *string          `json:"store_name" validate:"omitempty,max=200"`
	Notes        *string          `json:"notes" validate:"omitempty,max=4000"`
}

// ListQuery filters and paginates notes
type ListQuery struct {
	Page     int
	PageSize int
	Category string
	Search   string
	DateFrom string
	DateTo   string
}

// ListResult is one page of notes
type ListResult struct {
	Notes    []*Note `json:"notes"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
}
