// Package candidate is the editable, in-memory form of a scanned receipt.
//
// A Candidate only changes through Apply, which recomputes line, subtotal and
// grand totals after every successful edit. Arithmetic here is display math;
// authoritative rounding happens when a candidate is committed as a note.
package candidate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/zombor/billnote/internal/money"
)

// LowConfidenceThreshold flags items the reviewer should double-check
const LowConfidenceThreshold = 0.7

var (
	ErrIndexOutOfRange  = errors.New("item index out of range")
	ErrNegativeValue    = errors.New("value must not be negative")
	ErrInvalidNumber    = errors.New("value must be a finite number")
	ErrInvalidDirection = errors.New("direction must be up or down")
	ErrInvalidCandidate = errors.New("candidate is not ready to commit")
)

// Item is one line of a receipt under review
type Item struct {
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unitPrice"`
	TotalPrice      float64 `json:"totalPrice"`
	Category        *string `json:"category"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

// Candidate is a receipt under review
type Candidate struct {
	StoreName     string         `json:"storeName"`
	StoreAddress  *string        `json:"storeAddress"`
	Date          *string        `json:"date"`
	Time          *string        `json:"time"`
	Items         []Item         `json:"items"`
	Subtotal      float64        `json:"subtotal"`
	Tax           *float64       `json:"tax"`
	Tip           *float64       `json:"tip"`
	Total         float64        `json:"total"`
	Currency      money.Currency `json:"currency"`
	Confidence    float64        `json:"confidence"`
	PaymentMethod *string        `json:"paymentMethod,omitempty"`
	ReceiptNumber *string        `json:"receiptNumber,omitempty"`
	MerchantID    *string        `json:"merchantId,omitempty"`

	// ReportedTotal is the grand total printed on the receipt, if it was read
	ReportedTotal *float64 `json:"reportedTotal,omitempty"`
}

// New builds a candidate from extracted data: quantities are clamped to be
// non-negative, missing currency defaults, and totals are recomputed.
func New(c Candidate) *Candidate {
	out := c.Clone()
	if out.Currency == "" {
		out.Currency = money.DefaultCurrency
	}
	if out.Items == nil {
		out.Items = []Item{}
	}
	for i := range out.Items {
		out.Items[i].Quantity = money.NormalizeQuantity(out.Items[i].Quantity)
	}
	out.Recompute()
	return out
}

// Recompute sets subtotal to the sum of line totals and total to subtotal + tax + tip
func (c *Candidate) Recompute() {
	var subtotal float64
	for _, item := range c.Items {
		subtotal += item.TotalPrice
	}
	c.Subtotal = subtotal
	c.Total = subtotal + deref(c.Tax) + deref(c.Tip)
}

// Apply performs one edit. On error the candidate is left unchanged.
func (c *Candidate) Apply(e Edit) error {
	if e == nil {
		return fmt.Errorf("nil edit")
	}
	if err := e.apply(c); err != nil {
		return err
	}
	c.Recompute()
	return nil
}

// ApplyAll performs edits in order and stops at the first failure
func (c *Candidate) ApplyAll(edits ...Edit) error {
	for i, e := range edits {
		if err := c.Apply(e); err != nil {
			return fmt.Errorf("edit %d (%s): %w", i, e.Op(), err)
		}
	}
	return nil
}

// TotalMismatch reports whether the recomputed total differs from the printed one
func (c *Candidate) TotalMismatch() bool {
	if c.ReportedTotal == nil {
		return false
	}
	// half a minor unit of tolerance
	tolerance := 0.5 * math.Pow10(-int(c.Currency.FractionDigits()))
	return math.Abs(*c.ReportedTotal-c.Total) >= tolerance
}

// LowConfidence returns the indices of items scored below threshold
func (c *Candidate) LowConfidence(threshold float64) []int {
	var out []int
	for i, item := range c.Items {
		if item.ConfidenceScore < threshold {
			out = append(out, i)
		}
	}
	return out
}

// Validate checks that the candidate can be committed
func (c *Candidate) Validate() error {
	var errs []error
	if strings.TrimSpace(c.StoreName) == "" {
		errs = append(errs, fmt.Errorf("%w: store name is required", ErrInvalidCandidate))
	}
	if len(c.Items) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one item is required", ErrInvalidCandidate))
	}
	for i, item := range c.Items {
		if strings.TrimSpace(item.Name) == "" {
			errs = append(errs, fmt.Errorf("%w: item %d has no name", ErrInvalidCandidate, i))
		}
		if item.Quantity <= 0 {
			errs = append(errs, fmt.Errorf("%w: item %d quantity must be greater than 0", ErrInvalidCandidate, i))
		}
		if item.UnitPrice < 0 || item.TotalPrice < 0 {
			errs = append(errs, fmt.Errorf("%w: item %d has a negative price", ErrInvalidCandidate, i))
		}
	}
	if deref(c.Tax) < 0 || deref(c.Tip) < 0 {
		errs = append(errs, fmt.Errorf("%w: tax and tip must not be negative", ErrInvalidCandidate))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy
func (c Candidate) Clone() *Candidate {
	out := c
	out.StoreAddress = cloneString(c.StoreAddress)
	out.Date = cloneString(c.Date)
	out.Time = cloneString(c.Time)
	out.Tax = cloneFloat(c.Tax)
	out.Tip = cloneFloat(c.Tip)
	out.PaymentMethod = cloneString(c.PaymentMethod)
	out.ReceiptNumber = cloneString(c.ReceiptNumber)
	out.MerchantID = cloneString(c.MerchantID)
	out.ReportedTotal = cloneFloat(c.ReportedTotal)
	if c.Items != nil {
		out.Items = make([]Item, len(c.Items))
		for i, item := range c.Items {
			item.Description = cloneString(item.Description)
			item.Category = cloneString(item.Category)
			out.Items[i] = item
		}
	}
	return &out
}

// Band buckets a confidence score for display
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// ConfidenceBand maps a score to high (>= 0.8), medium (>= 0.5) or low
func ConfidenceBand(score float64) Band {
	switch {
	case score >= 0.8:
		return BandHigh
	case score >= 0.5:
		return BandMedium
	default:
		return BandLow
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
