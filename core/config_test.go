package core

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearConfigEnv unsets every variable LoadConfig reads for the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GENJOB_CONFIG", "GENJOB_BASE_DIR", "GENJOB_STORAGE_DIR", "GENJOB_SCRATCH_DIR",
		"GENJOB_LOG_LEVEL", "GENJOB_LOG_FILE", "DEV_MODE", "GENJOB_ACCELERATOR",
		"NVIDIA_SMI_PATH", "GENJOB_DEVICE_PROBE_TIMEOUT", "GENJOB_SEED_MAX",
		"SD_MODEL_PATH", "SD_IMAGE_SIZE", "SD_INFERENCE_STEPS", "SD_GUIDANCE_SCALE",
		"SD_STRENGTH", "SD_NEGATIVE_PROMPT", "SD_THREADS", "SD_VIDEO_MODEL_PATH",
		"SVD_BASE_STEPS", "SVD_FRAMES", "SVD_DECODE_CHUNK", "SVD_MOTION_BUCKET", "SVD_FPS",
		"FFMPEG_PATH", "PDFTOPPM_PATH", "GENJOB_RASTER_DPI", "GENJOB_TOOL_TIMEOUT",
		"PROMPT_LLM_URL", "PROMPT_MODEL", "PROMPT_TIMEOUT", "PROMPT_MAX_TOKENS",
		"TEXT_LLM_URL", "STORY_MODEL", "STORY_MAX_TOKENS", "STORY_TIMEOUT",
		"STORY_MAX_SOURCE_CHARS", "OPENAI_API_KEY", "ALLOW_SELF_SIGNED_CERTS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.StorageDir != "storage" {
		t.Errorf("StorageDir = %q, want storage", cfg.StorageDir)
	}
	if cfg.SDImageSize != 512 || cfg.SDInferenceSteps != 50 || cfg.SDGuidanceScale != 11.5 {
		t.Errorf("image defaults = %d/%d/%v", cfg.SDImageSize, cfg.SDInferenceSteps, cfg.SDGuidanceScale)
	}
	if cfg.SDStrength != 0.9 {
		t.Errorf("SDStrength = %v, want 0.9", cfg.SDStrength)
	}
	if cfg.SVDFrames != 25 || cfg.SVDDecodeChunkSize != 4 || cfg.SVDMotionBucketID != 100 || cfg.SVDFPS != 7 {
		t.Errorf("video defaults = %+v", cfg)
	}
	if cfg.SeedMax != 1_000_000_000 {
		t.Errorf("SeedMax = %d", cfg.SeedMax)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.PromptLLMURL != "http://localhost:11434/v1" {
		t.Errorf("PromptLLMURL = %q", cfg.PromptLLMURL)
	}
	if cfg.TextLLMURL != "http://127.0.0.1:1234/v1" {
		t.Errorf("TextLLMURL = %q", cfg.TextLLMURL)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GENJOB_BASE_DIR", "/srv/app")
	t.Setenv("SD_IMAGE_SIZE", "768")
	t.Setenv("SD_GUIDANCE_SCALE", "7.5")
	t.Setenv("GENJOB_ACCELERATOR", "off")
	t.Setenv("STORY_TIMEOUT", "90")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.BaseDir != "/srv/app" {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if cfg.SDImageSize != 768 {
		t.Errorf("SDImageSize = %d, want 768", cfg.SDImageSize)
	}
	if cfg.SDGuidanceScale != 7.5 {
		t.Errorf("SDGuidanceScale = %v, want 7.5", cfg.SDGuidanceScale)
	}
	if cfg.AcceleratorEnabled {
		t.Error("AcceleratorEnabled = true, want false")
	}
	if cfg.StoryTimeout != 90*time.Second {
		t.Errorf("StoryTimeout = %v, want 90s", cfg.StoryTimeout)
	}
	if cfg.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("FFmpegPath = %q", cfg.FFmpegPath)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "genjob.yaml")
	yaml := "sd_inference_steps: 30\nsvd_fps: 12\nstory_model: llama-3-8b\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GENJOB_CONFIG", path)
	t.Setenv("SVD_FPS", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.SDInferenceSteps != 30 {
		t.Errorf("SDInferenceSteps = %d, want 30 from file", cfg.SDInferenceSteps)
	}
	if cfg.StoryModel != "llama-3-8b" {
		t.Errorf("StoryModel = %q, want file value", cfg.StoryModel)
	}
	if cfg.SVDFPS != 10 {
		t.Errorf("SVDFPS = %d, want env to win over file", cfg.SVDFPS)
	}
	if cfg.SDImageSize != 512 {
		t.Errorf("SDImageSize = %d, want default kept for keys the file omits", cfg.SDImageSize)
	}
}

func TestLoadConfig_FileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("sd_image_size: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		wantCode string
	}{
		{"missing file", filepath.Join(dir, "absent.yaml"), ErrCodeConfigFileUnreadable},
		{"invalid yaml", bad, ErrCodeConfigFileInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("GENJOB_CONFIG", tt.path)

			_, err := LoadConfig()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("LoadConfig() error = %v, want *ConfigError", err)
			}
			if cfgErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", cfgErr.Code, tt.wantCode)
			}
			if !strings.Contains(cfgErr.Error(), tt.path) {
				t.Errorf("error %q does not name the file", cfgErr.Error())
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantKey string
	}{
		{"seed max", func(c *Config) { c.SeedMax = 0 }, "GENJOB_SEED_MAX"},
		{"size not divisible by 8", func(c *Config) { c.SDImageSize = 500 }, "SD_IMAGE_SIZE"},
		{"size too small", func(c *Config) { c.SDImageSize = 64 }, "SD_IMAGE_SIZE"},
		{"steps", func(c *Config) { c.SDInferenceSteps = 151 }, "SD_INFERENCE_STEPS"},
		{"base steps", func(c *Config) { c.SVDBaseSteps = 0 }, "SVD_BASE_STEPS"},
		{"guidance", func(c *Config) { c.SDGuidanceScale = 0.5 }, "SD_GUIDANCE_SCALE"},
		{"strength zero", func(c *Config) { c.SDStrength = 0 }, "SD_STRENGTH"},
		{"strength above one", func(c *Config) { c.SDStrength = 1.5 }, "SD_STRENGTH"},
		{"frames", func(c *Config) { c.SVDFrames = 0 }, "SVD_FRAMES"},
		{"decode chunk", func(c *Config) { c.SVDDecodeChunkSize = 0 }, "SVD_DECODE_CHUNK"},
		{"fps", func(c *Config) { c.SVDFPS = 0 }, "SVD_FPS"},
		{"dpi", func(c *Config) { c.RasterDPI = 5 }, "GENJOB_RASTER_DPI"},
		{"tool timeout", func(c *Config) { c.ToolTimeout = -time.Second }, "GENJOB_TOOL_TIMEOUT"},
		{"story tokens", func(c *Config) { c.StoryMaxTokens = 0 }, "STORY_MAX_TOKENS"},
		{"source chars", func(c *Config) { c.StoryMaxSourceChars = 0 }, "STORY_MAX_SOURCE_CHARS"},
		{"prompt url scheme", func(c *Config) { c.PromptLLMURL = "ftp://host/v1" }, "PROMPT_LLM_URL"},
		{"text url host", func(c *Config) { c.TextLLMURL = "http:///v1" }, "TEXT_LLM_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !IsConfigError(err) {
				t.Errorf("Validate() error %T is not a *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("Validate() error %q does not name %s", err.Error(), tt.wantKey)
			}
		})
	}
}

func TestConfig_Roots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDir = filepath.Join("srv", "app")

	if got, want := cfg.StorageRoot(), filepath.Join("srv", "app", "storage"); got != want {
		t.Errorf("StorageRoot() = %q, want %q", got, want)
	}
	if got, want := cfg.ScratchRoot(), filepath.Join("srv", "app", "public", "uploads"); got != want {
		t.Errorf("ScratchRoot() = %q, want %q", got, want)
	}

	abs := filepath.Join(t.TempDir(), "scratch")
	cfg.ScratchDir = abs
	if got := cfg.ScratchRoot(); got != abs {
		t.Errorf("ScratchRoot() = %q, want absolute %q", got, abs)
	}
}

func TestGetHTTPClient(t *testing.T) {
	cfg := DefaultConfig()

	client := GetHTTPClient(cfg, 30*time.Second)
	if client.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", client.Timeout)
	}
	if client.Transport != nil {
		t.Error("Transport should be the default when self-signed certs are not allowed")
	}

	cfg.AllowSelfSignedCerts = true
	client = GetHTTPClient(cfg, 0)
	transport, ok := client.Transport.(*http.Transport)
	if !ok || transport.TLSClientConfig == nil || !transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("self-signed certs allowed but TLS verification still on")
	}
}

func TestConfigError_Error(t *testing.T) {
	withAction := ErrInvalidValue("SVD_FPS", 0, "must be positive")
	if got := withAction.Error(); !strings.Contains(got, "Invalid SVD_FPS value 0: must be positive") || !strings.Contains(got, "Set SVD_FPS") {
		t.Errorf("Error() = %q", got)
	}

	bare := &ConfigError{Code: "X", Message: "only the message"}
	if got := bare.Error(); got != "only the message" {
		t.Errorf("Error() = %q, want message only", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{-5, "0 B"},
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.50 KB"},
		{BytesPerMB, "1.00 MB"},
		{8 * BytesPerGB, "8.00 GB"},
		{2 * BytesPerTB, "2.00 TB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
