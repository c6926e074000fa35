// Package llm talks to OpenAI-compatible text endpoints: the local prompt
// enhancement server and the story text server.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ClientConfig holds configuration for creating an OpenAI-compatible client.
type ClientConfig struct {
	// APIKey is optional; local servers ignore it.
	APIKey string

	// BaseURL is the endpoint root including the /v1 suffix.
	BaseURL string

	// FallbackURL is used if BaseURL is empty.
	FallbackURL string

	// HTTPClient should come from core.GetHTTPClient so TLS settings and
	// timeouts match the rest of the job.
	HTTPClient *http.Client
}

// NewClient creates an OpenAI client with the given configuration.
//
//	client := llm.NewClient(llm.ClientConfig{
//	    BaseURL:    cfg.PromptLLMURL,
//	    HTTPClient: core.GetHTTPClient(cfg, cfg.PromptTimeout),
//	})
func NewClient(cfg ClientConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)

	if baseURL := ResolveBaseURL(cfg.BaseURL, cfg.FallbackURL); baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return openai.NewClientWithConfig(clientConfig)
}

// ResolveBaseURL returns the primary URL if non-empty, otherwise the fallback.
//
//	url := llm.ResolveBaseURL("", "http://fallback.com")
//	// url == "http://fallback.com"
func ResolveBaseURL(primary, fallback string) string {
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	return fallback
}

// IsLocalEndpoint checks if a URL points to this machine.
func IsLocalEndpoint(url string) bool {
	lower := strings.ToLower(url)
	for _, pattern := range []string{"127.0.0.1", "localhost", "0.0.0.0", "[::1]"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Error kinds reported by this package. Every *UpstreamError matches exactly
// one of ErrUnreachable, ErrTimeout or ErrUpstream under errors.Is.
var (
	ErrUnreachable      = errors.New("llm: endpoint unreachable")
	ErrTimeout          = errors.New("llm: request timed out")
	ErrUpstream         = errors.New("llm: upstream service error")
	ErrEmptyResponse    = errors.New("llm: empty response")
	ErrEmptyPrompt      = errors.New("llm: prompt is empty")
	ErrModelUnavailable = errors.New("llm: model not available")
	ErrReleased         = errors.New("llm: model released")
)

// UpstreamError describes a failed call to a text endpoint.
type UpstreamError struct {
	Kind     error // ErrUnreachable, ErrTimeout or ErrUpstream
	Endpoint string
	Status   int // HTTP status when the server answered, 0 otherwise
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v: %s returned status %d: %v", e.Kind, e.Endpoint, e.Status, e.Err)
	}
	if e.Kind == ErrUnreachable && IsLocalEndpoint(e.Endpoint) {
		return fmt.Sprintf("%v: %s: %v (is the local server running?)", e.Kind, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify maps a go-openai error onto an *UpstreamError.
func classify(endpoint string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Kind: ErrUpstream, Endpoint: endpoint, Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{Kind: ErrUpstream, Endpoint: endpoint, Status: reqErr.HTTPStatusCode, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Kind: ErrTimeout, Endpoint: endpoint, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &UpstreamError{Kind: ErrUnreachable, Endpoint: endpoint, Err: err}
}

// listModelIDs returns the model identifiers the endpoint advertises.
func listModelIDs(ctx context.Context, client *openai.Client) ([]string, error) {
	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// modelListed matches exact ids and Ollama-style tagged ids ("llama3:latest").
func modelListed(ids []string, want string) bool {
	for _, id := range ids {
		if id == want || strings.HasPrefix(id, want+":") {
			return true
		}
	}
	return false
}
