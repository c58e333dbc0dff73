// Package gemini wraps the generative model calls used outside the live
// interview: chat, timetables, interview feedback, and spoken greetings.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// ErrEmptyResponse means the model returned no usable content.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Config selects credentials and model ids.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	ChatModel string
	ProModel  string
	TTSModel  string
	Voice     string
}

// Client is constructed once at startup and shared by every command.
type Client struct {
	genai  *genai.Client
	cfg    Config
	logger *slog.Logger
}

// New builds a Gemini API client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini API key must not be empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gemini-2.5-flash"
	}
	if cfg.ProModel == "" {
		cfg.ProModel = "gemini-2.5-pro"
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = "gemini-2.5-flash-preview-tts"
	}
	if cfg.Voice == "" {
		cfg.Voice = "Kore"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{genai: client, cfg: cfg, logger: logger}, nil
}
