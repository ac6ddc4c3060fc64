package note

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/zombor/billnote/internal/money"
)

// SummaryQuery limits a report to a currency and an inclusive date range
type SummaryQuery struct {
	DateFrom string
	DateTo   string
	Currency string
}

// Bucket is the spend of one category or month
type Bucket struct {
	Key   string          `json:"key"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// Summary is spend grouped by category and by month
type Summary struct {
	Currency   money.Currency  `json:"currency"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	ByCategory []Bucket        `json:"by_category"`
	ByMonth    []Bucket        `json:"by_month"`
}

// Summary totals the owner's notes in one currency. Categories are sorted by
// spend, months chronologically.
func (s *Service) Summary(owner string, q SummaryQuery) (*Summary, error) {
	currency, err := money.ParseCurrency(q.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	notes, err := s.db.ListNotes(owner)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}

	out := &Summary{Currency: currency, Total: decimal.Zero}
	categories := map[string]*Bucket{}
	months := map[string]*Bucket{}
	add := func(m map[string]*Bucket, key string, amount decimal.Decimal) {
		b, ok := m[key]
		if !ok {
			b = &Bucket{Key: key, Total: decimal.Zero}
			m[key] = b
		}
		b.Total = b.Total.Add(amount)
		b.Count++
	}

	for _, n := range notes {
		if n.Currency != currency {
			continue
		}
		if q.DateFrom != "" && n.Date < q.DateFrom {
			continue
		}
		if q.DateTo != "" && n.Date > q.DateTo {
			continue
		}
		out.Total = out.Total.Add(n.TotalAmount)
		out.Count++
		add(categories, n.Category, n.TotalAmount)
		month := n.Date
		if len(month) >= 7 {
			month = month[:7]
		}
		add(months, month, n.TotalAmount)
	}

	out.ByCategory = flatten(categories)
	sort.SliceStable(out.ByCategory, func(i, j int) bool {
		if c := out.ByCategory[i].Total.Cmp(out.ByCategory[j].Total); c != 0 {
			return c > 0
		}
		return out.ByCategory[i].Key < out.ByCategory[j].Key
	})
	out.ByMonth = flatten(months)
	sort.Slice(out.ByMonth, func(i, j int) bool {
		return out.ByMonth[i].Key < out.ByMonth[j].Key
	})
	return out, nil
}

func flatten(m map[string]*Bucket) []Bucket {
	out := make([]Bucket, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	return out
}
