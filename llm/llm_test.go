package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const modelsJSON = `{"object":"list","data":[{"id":"llama3:latest","object":"model"},{"id":"mistral-7b-instruct-v0.2","object":"model"}]}`

// newServer serves the given paths under /v1 and records the request paths.
func newServer(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu    sync.Mutex
		paths []string
	)
	mux := http.NewServeMux()
	for path, h := range routes {
		h := h
		mux.HandleFunc("/v1"+path, func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			paths = append(paths, r.URL.Path)
			mu.Unlock()
			h(w, r)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &paths
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		primary, fallback, want string
	}{
		{"http://a/v1", "http://b/v1", "http://a/v1"},
		{"", "http://b/v1", "http://b/v1"},
		{"  ", "http://b/v1", "http://b/v1"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := ResolveBaseURL(tt.primary, tt.fallback); got != tt.want {
			t.Errorf("ResolveBaseURL(%q, %q) = %q, want %q", tt.primary, tt.fallback, got, tt.want)
		}
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := map[string]bool{
		"http://localhost:11434/v1": true,
		"http://127.0.0.1:1234/v1":  true,
		"http://LOCALHOST/v1":       true,
		"http://[::1]:8080":         true,
		"https://api.openai.com/v1": false,
	}
	for url, want := range tests {
		if got := IsLocalEndpoint(url); got != want {
			t.Errorf("IsLocalEndpoint(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestCleanEnhancedPrompt(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a castle at dusk  ", "a castle at dusk"},
		{"Enhanced Prompt: a castle", "a castle"},
		{"ENHANCED PROMPT:a castle", "a castle"},
		{"enhanced prompt:   ", ""},
		{"The enhanced prompt: stays", "The enhanced prompt: stays"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanEnhancedPrompt(tt.in); got != tt.want {
			t.Errorf("CleanEnhancedPrompt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildEnhancePrompt(t *testing.T) {
	got := BuildEnhancePrompt("Be vivid.", "a cat")
	want := "System Instruction: Be vivid.\n\nUser Input: a cat\n\nEnhanced Prompt:"
	if got != want {
		t.Errorf("BuildEnhancePrompt() = %q, want %q", got, want)
	}
}

func TestEnhancer_Enhance(t *testing.T) {
	var captured openai.CompletionRequest
	srv, paths := newServer(t, map[string]http.HandlerFunc{
		"/models": jsonHandler(modelsJSON),
		"/completions": func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
			jsonHandler(`{"choices":[{"text":" Enhanced Prompt: a misty castle at dusk, oil painting\n"}],"usage":{"prompt_tokens":12,"completion_tokens":9,"total_tokens":21}}`)(w, r)
		},
	})

	e := NewEnhancer(EnhancerConfig{
		BaseURL:      srv.URL + "/v1",
		Model:        "llama3",
		MaxTokens:    2048,
		Temperature:  0.7,
		ProbeTimeout: time.Second,
	}, nil)

	got, err := e.Enhance(context.Background(), "a castle", "Make it painterly.")
	if err != nil {
		t.Fatalf("Enhance() error = %v", err)
	}
	if got != "a misty castle at dusk, oil painting" {
		t.Errorf("Enhance() = %q", got)
	}

	if len(*paths) != 2 || (*paths)[0] != "/v1/models" || (*paths)[1] != "/v1/completions" {
		t.Errorf("request order = %v, want probe then completion", *paths)
	}
	if captured.Model != "llama3" || captured.MaxTokens != 2048 {
		t.Errorf("captured request = %+v", captured)
	}
	if prompt, _ := captured.Prompt.(string); !strings.HasSuffix(prompt, "Enhanced Prompt:") {
		t.Errorf("prompt = %v", captured.Prompt)
	}
	if len(captured.Stop) != 4 {
		t.Errorf("stop = %v, want 4 sequences", captured.Stop)
	}
}

func TestEnhancer_EmptyOutput(t *testing.T) {
	srv, _ := newServer(t, map[string]http.HandlerFunc{
		"/models":      jsonHandler(modelsJSON),
		"/completions": jsonHandler(`{"choices":[{"text":"  \n "}]}`),
	})
	e := NewEnhancer(EnhancerConfig{BaseURL: srv.URL + "/v1", Model: "llama3"}, nil)

	_, err := e.Enhance(context.Background(), "a castle", "x")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Enhance() error = %v, want ErrEmptyResponse", err)
	}
}

func TestEnhancer_EmptyPrompt(t *testing.T) {
	e := NewEnhancer(EnhancerConfig{BaseURL: "http://127.0.0.1:1/v1", Model: "llama3"}, nil)
	if _, err := e.Enhance(context.Background(), "   ", "x"); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("Enhance() error = %v, want ErrEmptyPrompt", err)
	}
}

func TestEnhancer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/v1"
	srv.Close()

	e := NewEnhancer(EnhancerConfig{BaseURL: url, Model: "llama3", ProbeTimeout: time.Second}, nil)
	_, err := e.Enhance(context.Background(), "a castle", "x")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Enhance() error = %v, want ErrUnreachable", err)
	}
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.Endpoint != url {
		t.Errorf("expected *UpstreamError for %s, got %v", url, err)
	}
	if !strings.Contains(err.Error(), "is the local server running?") {
		t.Errorf("Error() = %q, want local server hint", err.Error())
	}
}

func TestUpstreamError_RemoteHasNoLocalHint(t *testing.T) {
	err := &UpstreamError{Kind: ErrUnreachable, Endpoint: "https://api.openai.com/v1", Err: errors.New("dial tcp: i/o timeout")}
	if strings.Contains(err.Error(), "local server") {
		t.Errorf("Error() = %q, remote endpoint must not get the local hint", err.Error())
	}
}

func TestEnhancer_ServerError(t *testing.T) {
	srv, _ := newServer(t, map[string]http.HandlerFunc{
		"/models": jsonHandler(modelsJSON),
		"/completions": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":{"message":"model crashed","type":"server_error"}}`)
		},
	})
	e := NewEnhancer(EnhancerConfig{BaseURL: srv.URL + "/v1", Model: "llama3"}, nil)

	_, err := e.Enhance(context.Background(), "a castle", "x")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Enhance() error = %v, want ErrUpstream", err)
	}
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %+v, want 500", upErr)
	}
}

func TestTextEngine_LoadCompleteRelease(t *testing.T) {
	var captured openai.ChatCompletionRequest
	srv, _ := newServer(t, map[string]http.HandlerFunc{
		"/models": jsonHandler(modelsJSON),
		"/chat/completions": func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
			jsonHandler(`{"choices":[{"message":{"role":"assistant","content":"\nOnce upon a time.\n"}}],"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}}`)(w, r)
		},
	})

	engine := NewTextEngine(TextEngineConfig{BaseURL: srv.URL + "/v1", Model: "mistral-7b-instruct-v0.2"}, nil)
	model, err := engine.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	seed := 42
	text, err := model.Complete(context.Background(), "Tell a story", TextParams{MaxTokens: 1024, Temperature: 0.7, TopP: 0.95, Seed: &seed})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "Once upon a time." {
		t.Errorf("Complete() = %q", text)
	}
	if captured.Seed == nil || *captured.Seed != 42 {
		t.Errorf("seed not forwarded: %+v", captured.Seed)
	}
	if captured.MaxTokens != 1024 || len(captured.Messages) != 1 {
		t.Errorf("captured request = %+v", captured)
	}

	if err := model.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := model.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if _, err := model.Complete(context.Background(), "again", TextParams{}); !errors.Is(err, ErrReleased) {
		t.Errorf("Complete() after Release error = %v, want ErrReleased", err)
	}
}

func TestTextEngine_ModelMissing(t *testing.T) {
	srv, _ := newServer(t, map[string]http.HandlerFunc{
		"/models": jsonHandler(modelsJSON),
	})
	engine := NewTextEngine(TextEngineConfig{BaseURL: srv.URL + "/v1", Model: "gpt-neo"}, nil)

	if _, err := engine.Load(context.Background()); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Load() error = %v, want ErrModelUnavailable", err)
	}
}

func TestModelListed(t *testing.T) {
	ids := []string{"llama3:latest", "mistral"}
	tests := map[string]bool{
		"llama3":        true,
		"llama3:latest": true,
		"mistral":       true,
		"llama":         false,
		"mistral-7b":    false,
	}
	for want, expected := range tests {
		if got := modelListed(ids, want); got != expected {
			t.Errorf("modelListed(%q) = %v, want %v", want, got, expected)
		}
	}
}

func TestClassify(t *testing.T) {
	if classify("x", nil) != nil {
		t.Error("classify(nil) should be nil")
	}
	if err := classify("x", context.DeadlineExceeded); !errors.Is(err, ErrTimeout) {
		t.Errorf("deadline error = %v, want ErrTimeout", err)
	}
	if err := classify("x", context.Canceled); !errors.Is(err, context.Canceled) || errors.Is(err, ErrUnreachable) {
		t.Errorf("canceled error = %v, want bare context.Canceled", err)
	}
	if err := classify("x", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}); !errors.Is(err, ErrUpstream) {
		t.Errorf("request error = %v, want ErrUpstream", err)
	}
}
