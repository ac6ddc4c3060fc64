package scanning

import "context"

// DetectionMode controls how much detail the provider is asked to extract
type DetectionMode string

const (
	DetectionBasic    DetectionMode = "BASIC"
	DetectionDetailed DetectionMode = "DETAILED"
)

// Options tune a single scan
type Options struct {
	DetectionMode       DetectionMode
	PreferredLanguage   string
	CategorySuggestions bool
}

// ReceiptData is the structured receipt returned by a vision provider.
// Pointer fields are nil when the provider could not read them.
type ReceiptData struct {
	StoreName     string        `json:"storeName"`
	StoreAddress  *string       `json:"storeAddress"`
	Date          *string       `json:"date"`
	Time          *string       `json:"time"`
	Items         []ReceiptItem `json:"items"`
	Subtotal      *float64      `json:"subtotal"`
	Tax           *float64      `json:"tax"`
	Tip           *float64      `json:"tip"`
	Total         *float64      `json:"total"`
	Currency      *string       `json:"currency"`
	Confidence    *float64      `json:"confidence"`
	PaymentMethod *string       `json:"paymentMethod"`
	ReceiptNumber *string       `json:"receiptNumber"`
	MerchantID    *string       `json:"merchantId"`
}

// ReceiptItem is one extracted line
type ReceiptItem struct {
	Name            string   `json:"name"`
	Description     *string  `json:"description"`
	Quantity        *float64 `json:"quantity"`
	UnitPrice       *float64 `json:"unitPrice"`
	TotalPrice      *float64 `json:"totalPrice"`
	Category        *string  `json:"category"`
	ConfidenceScore *float64 `json:"confidenceScore"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts its header and line items
	ScanReceipt(ctx context.Context, imageData []byte, contentType string, opts Options) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}
