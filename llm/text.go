package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"mediagen/core"
	"mediagen/logging"
)

// TextEngineConfig configures a TextEngine.
type TextEngineConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// TextParams tunes one chat completion.
type TextParams struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
	Seed        *int // nil lets the server pick
}

// TextEngine hands out TextModel handles for a model served by a local
// OpenAI-compatible server.
type TextEngine struct {
	cfg    TextEngineConfig
	logger *logging.Logger
}

// NewTextEngine creates a TextEngine. A nil logger discards diagnostics.
func NewTextEngine(cfg TextEngineConfig, logger *logging.Logger) *TextEngine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TextEngine{cfg: cfg, logger: logger}
}

// NewTextEngineFromConfig wires a TextEngine from the job configuration.
func NewTextEngineFromConfig(cfg *core.Config, logger *logging.Logger) *TextEngine {
	return NewTextEngine(TextEngineConfig{
		BaseURL:    cfg.TextLLMURL,
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.StoryModel,
		HTTPClient: core.GetHTTPClient(cfg, cfg.StoryTimeout),
	}, logger)
}

// Load checks that the server is up and serves the configured model, and
// returns a handle bound to it.
func (e *TextEngine) Load(ctx context.Context) (*TextModel, error) {
	httpClient := e.cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	client := NewClient(ClientConfig{APIKey: e.cfg.APIKey, BaseURL: e.cfg.BaseURL, HTTPClient: httpClient})

	ids, err := listModelIDs(ctx, client)
	if err != nil {
		return nil, classify(e.cfg.BaseURL, err)
	}
	if !modelListed(ids, e.cfg.Model) {
		return nil, fmt.Errorf("%w: %q not served by %s (available: %s)",
			ErrModelUnavailable, e.cfg.Model, e.cfg.BaseURL, strings.Join(ids, ", "))
	}

	e.logger.Info("text model ready", zap.String("model", e.cfg.Model), zap.String("endpoint", e.cfg.BaseURL))
	return &TextModel{client: client, http: httpClient, cfg: e.cfg, logger: e.logger}, nil
}

// TextModel is a loaded text model. It is not safe for concurrent use.
type TextModel struct {
	client   *openai.Client
	http     *http.Client
	cfg      TextEngineConfig
	logger   *logging.Logger
	released bool
}

// Complete sends prompt as a single user message and returns the reply.
func (m *TextModel) Complete(ctx context.Context, prompt string, p TextParams) (string, error) {
	if m.released {
		return "", ErrReleased
	}
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		Seed:        p.Seed,
	})
	if err != nil {
		return "", classify(m.cfg.BaseURL, err)
	}
	m.logger.Info("text generated", logging.InferenceFields(logging.NewInferenceMetrics(
		m.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, time.Since(start))))

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: model %s returned only whitespace", ErrEmptyResponse, m.cfg.Model)
	}
	return text, nil
}

// Release drops pooled connections to the server. Calling it twice is safe.
func (m *TextModel) Release() error {
	if m.released {
		return nil
	}
	m.released = true
	m.http.CloseIdleConnections()
	return nil
}
