package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"strconv"
	"time"
)

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2 Jan 2006",
	"January 2, 2006",
}

var timeFormats = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3:04:05 PM",
}

// parseReceiptJSON parses the JSON reply of a vision provider
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Models sometimes wrap the object in prose; keep the outermost braces only.
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data ReceiptData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.StoreName = strings.TrimSpace(data.StoreName)
	data.StoreAddress = cleanString(data.StoreAddress)
	data.Date = normalizeDate(cleanString(data.Date))
	data.Time = normalizeTime(cleanString(data.Time))
	data.PaymentMethod = cleanString(data.PaymentMethod)
	data.ReceiptNumber = cleanString(data.ReceiptNumber)
	data.MerchantID = cleanString(data.MerchantID)
	data.Confidence = clampScore(data.Confidence)

	if c := cleanString(data.Currency); c != nil {
		upper := strings.ToUpper(*c)
		data.Currency = &upper
	} else {
		data.Currency = nil
	}

	if data.Items == nil {
		data.Items = []ReceiptItem{}
	}
	for i := range data.Items {
		item := &data.Items[i]
		item.Name = strings.TrimSpace(item.Name)
		item.Description = cleanString(item.Description)
		item.Category = cleanString(item.Category)
		item.ConfidenceScore = clampScore(item.ConfidenceScore)
	}

	return &data, nil
}

// cleanString trims a nullable string and turns blanks into nil
func cleanString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" || strings.EqualFold(trimmed, "null") {
		return nil
	}
	return &trimmed
}

// normalizeDate rewrites recognised dates as YYYY-MM-DD. A numeric date
// that reads as a valid day and month either way round (05/03/2024) is kept
// verbatim, as is anything unrecognised, for the user to fix during review.
func normalizeDate(s *string) *string {
	if s == nil {
		return nil
	}
	if ambiguousDate(*s) {
		return s
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, *s); err == nil {
			out := d.Format("2006-01-02")
			return &out
		}
	}
	return s
}

// ambiguousDate reports whether s is NN/NN/YYYY (any of / - .) with both
// leading fields usable as a month and different from each other.
func ambiguousDate(s string) bool {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) != 3 || len(parts[2]) != 4 {
		return false
	}
	a, errA := strconv.Atoi(parts[0])
	b, errB := strconv.Atoi(parts[1])
	if errA != nil || errB != nil {
		return false
	}
	return a != b && a >= 1 && a <= 12 && b >= 1 && b <= 12
}

func normalizeTime(s *string) *string {
	if s == nil {
		return nil
	}
	for _, format := range timeFormats {
		if t, err := time.Parse(format, strings.ToUpper(*s)); err == nil {
			out := t.Format("15:04")
			return &out
		}
	}
	return s
}

func clampScore(v *float64) *float64 {
	if v == nil {
		return nil
	}
	score := *v
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return &score
}
