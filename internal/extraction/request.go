package extraction

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/billnote/internal/candidate"
	"github.com/zombor/billnote/internal/scanning"
)

// DefaultMaximumImageSize bounds the decoded image
const DefaultMaximumImageSize = 5 * 1024 * 1024

const defaultHeader = "data:image/jpeg;base64,"

// Config is the receipt processing policy for one extraction
type Config struct {
	StoreOriginalImage       bool                   `json:"storeOriginalImage"`
	AutoConfirmThreshold     float64                `json:"autoConfirmThreshold" validate:"gte=0,lte=1"`
	PreferredLanguage        string                 `json:"preferredLanguage" validate:"max=35"`
	DetectionMode            scanning.DetectionMode `json:"detectionMode" validate:"oneof=BASIC DETAILED"`
	StoreCategorySuggestions bool                   `json:"storeCategorySuggestions"`
	MaximumImageSize         int64                  `json:"maximumImageSize" validate:"gt=0"`
}

// DefaultConfig returns the default processing policy
func DefaultConfig() Config {
	return Config{
		StoreOriginalImage:       true,
		AutoConfirmThreshold:     0.9,
		PreferredLanguage:        "vi",
		DetectionMode:            scanning.DetectionDetailed,
		StoreCategorySuggestions: true,
		MaximumImageSize:         DefaultMaximumImageSize,
	}
}

// UnmarshalJSON fills fields missing from data with their defaults
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	p := plain(DefaultConfig())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Config(p)
	return nil
}

// Options override the config for a single request
type Options struct {
	DetectionMode     scanning.DetectionMode `json:"detectionMode,omitempty" validate:"omitempty,oneof=BASIC DETAILED"`
	PreferredLanguage string                 `json:"preferredLanguage,omitempty" validate:"max=35"`
}

// Request is the body of an extraction call. ImageBase64 may be a data URI
// or bare base64.
type Request struct {
	ImageBase64 string   `json:"imageBase64"`
	Options     *Options `json:"options,omitempty" validate:"omitempty"`
	Config      *Config  `json:"config,omitempty" validate:"omitempty"`
}

// NewRequest encodes raw image bytes as a data URI request
func NewRequest(data []byte, contentType string) Request {
	if contentType == "" {
		contentType = scanning.DetectContentType(data)
	}
	return Request{
		ImageBase64: "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}
}

// Response is the wire shape of an extraction result
type Response struct {
	Success          bool                 `json:"success"`
	Data             *candidate.Candidate `json:"data,omitempty"`
	ProcessingTimeMs int64                `json:"processingTimeMs"`
	Confidence       float64              `json:"confidence"`
	AutoConfirm      bool                 `json:"autoConfirm,omitempty"`
	ArtifactKey      string               `json:"artifactKey,omitempty"`
	Error            *Error               `json:"error,omitempty"`
}

// ErrorResponse wraps err in the failure wire shape
func ErrorResponse(err error) Response {
	return Response{Success: false, Error: AsError(err)}
}

// NormalizeDataURI prefixes bare base64 with a JPEG data URI header
func NormalizeDataURI(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "data:") {
		return s
	}
	return defaultHeader + s
}

// DecodeDataURI returns the payload and declared content type of a base64
// data URI. Bare base64 is treated as JPEG.
func DecodeDataURI(s string) ([]byte, string, error) {
	s = NormalizeDataURI(s)
	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return nil, "", fmt.Errorf("data uri has no payload")
	}
	meta, isBase64 := strings.CutSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("data uri is not base64 encoded")
	}
	contentType := strings.TrimSpace(meta)
	if contentType == "" {
		contentType = "image/jpeg"
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some encoders drop the padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("decoding base64: %w", err)
		}
	}
	return data, contentType, nil
}
