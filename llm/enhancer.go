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

// enhancedLabel is stripped when the model repeats the template's final cue.
const enhancedLabel = "enhanced prompt:"

// stopSequences end generation before the model starts a new turn.
var stopSequences = []string{"User Input:", "System Instruction:", "\n\n", "Enhanced Prompt:"}

// EnhancerConfig configures an Enhancer.
type EnhancerConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float32
	ProbeTimeout time.Duration // Bound on the reachability check before generating
	HTTPClient   *http.Client
}

// Enhancer rewrites a user prompt following a system instruction, using a
// raw completion against an Ollama-compatible endpoint.
type Enhancer struct {
	client *openai.Client
	cfg    EnhancerConfig
	logger *logging.Logger
}

// NewEnhancer creates an Enhancer. A nil logger discards diagnostics.
func NewEnhancer(cfg EnhancerConfig, logger *logging.Logger) *Enhancer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Enhancer{
		client: NewClient(ClientConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, HTTPClient: cfg.HTTPClient}),
		cfg:    cfg,
		logger: logger,
	}
}

// NewEnhancerFromConfig wires an Enhancer from the job configuration.
func NewEnhancerFromConfig(cfg *core.Config, logger *logging.Logger) *Enhancer {
	return NewEnhancer(EnhancerConfig{
		BaseURL:      cfg.PromptLLMURL,
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.PromptModel,
		MaxTokens:    cfg.PromptMaxTokens,
		Temperature:  float32(cfg.PromptTemperature),
		ProbeTimeout: cfg.PromptProbeTimeout,
		HTTPClient:   core.GetHTTPClient(cfg, cfg.PromptTimeout),
	}, logger)
}

// Ping verifies the endpoint answers within ProbeTimeout.
func (e *Enhancer) Ping(ctx context.Context) error {
	if e.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ProbeTimeout)
		defer cancel()
	}
	if _, err := listModelIDs(ctx, e.client); err != nil {
		return classify(e.cfg.BaseURL, err)
	}
	return nil
}

// Enhance returns the rewritten prompt as a single trimmed string.
func (e *Enhancer) Enhance(ctx context.Context, userPrompt, instruction string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", ErrEmptyPrompt
	}

	if err := e.Ping(ctx); err != nil {
		return "", err
	}
	e.logger.Debug("prompt endpoint reachable", zap.String("endpoint", e.cfg.BaseURL))

	start := time.Now()
	resp, err := e.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       e.cfg.Model,
		Prompt:      BuildEnhancePrompt(instruction, userPrompt),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Stop:        stopSequences,
	})
	if err != nil {
		return "", classify(e.cfg.BaseURL, err)
	}
	e.logger.Info("prompt enhanced", logging.InferenceFields(logging.NewInferenceMetrics(
		e.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, time.Since(start))))

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := CleanEnhancedPrompt(resp.Choices[0].Text)
	if text == "" {
		return "", fmt.Errorf("%w: model %s returned only whitespace", ErrEmptyResponse, e.cfg.Model)
	}
	return text, nil
}

// BuildEnhancePrompt renders the completion prompt.
func BuildEnhancePrompt(instruction, userPrompt string) string {
	return fmt.Sprintf("System Instruction: %s\n\nUser Input: %s\n\nEnhanced Prompt:", instruction, userPrompt)
}

// CleanEnhancedPrompt trims whitespace and a leading "Enhanced Prompt:" label
// in any case.
func CleanEnhancedPrompt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= len(enhancedLabel) && strings.EqualFold(text[:len(enhancedLabel)], enhancedLabel) {
		text = strings.TrimSpace(text[len(enhancedLabel):])
	}
	return text
}
