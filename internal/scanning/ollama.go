package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Ollama implements the Scanner interface using a local Ollama server.
// Vision models that read receipts reasonably well: llava:1.6, qwen2-vl:7b, llama3.2-vision.
type Ollama struct {
	model  string
	client *resty.Client
}

// NewOllama creates a new Ollama Scanner instance
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		model: modelName,
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			// Vision models on CPU are slow
			SetTimeout(120*time.Second).
			SetHeader("Accept", "application/json"),
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ScanReceipt sends the receipt image to Ollama's chat API and parses the reply
func (o *Ollama) ScanReceipt(ctx context.Context, imageData []byte, contentType string, opts Options) (*ReceiptData, error) {
	pngData, err := toPNG(imageData, contentType)
	if err != nil {
		return nil, err
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading receipts and invoices. Read every line of text in the image and extract it accurately.",
			},
			{
				Role:    "user",
				Content: buildPrompt(opts),
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	}

	var chatResp ollamaChatResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(reqBody).
		SetResult(&chatResp).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	data, err := parseReceiptJSON(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}
	return data, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
