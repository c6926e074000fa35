package core

import (
	"crypto/tls"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultNegativePrompt steers image generation away from common artifacts.
const DefaultNegativePrompt = "blurry, low quality, bad anatomy, ugly, disfigured, poorly drawn face, bad hands, mutated, washed out colors, low contrast, text, signature"

// Config holds all configuration values shared by the generation jobs.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file named by GENJOB_CONFIG, then environment variables (including any
// loaded from .env). The resolved Config is passed explicitly into each job;
// nothing reads the environment after LoadConfig returns.
type Config struct {
	// Paths
	BaseDir    string `yaml:"base_dir"`    // Working root for relative output paths
	StorageDir string `yaml:"storage_dir"` // Output root relative to BaseDir (default: storage)
	ScratchDir string `yaml:"scratch_dir"` // Parent of per-job temporary frame directories

	// Logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"` // Optional rotated JSON log file
	DevMode  bool   `yaml:"dev_mode"` // Human-readable console logs

	// Device selection
	AcceleratorEnabled bool          `yaml:"accelerator_enabled"` // false forces the general processor
	NvidiaSMIPath      string        `yaml:"nvidia_smi_path"`
	DeviceProbeTimeout time.Duration `yaml:"device_probe_timeout"`

	// Seeds
	SeedMax int64 `yaml:"seed_max"` // Upper bound (inclusive) of random seeds

	// Stable Diffusion (image and image-edit jobs, stage 1 of the video job)
	SDModelPath      string  `yaml:"sd_model_path"`
	SDImageSize      int     `yaml:"sd_image_size"`      // Output size in pixels (default: 512, divisible by 8)
	SDInferenceSteps int     `yaml:"sd_inference_steps"` // Denoising steps (default: 50)
	SDGuidanceScale  float64 `yaml:"sd_guidance_scale"`  // CFG scale (default: 11.5)
	SDStrength       float64 `yaml:"sd_strength"`        // Image-edit denoising strength (default: 0.9)
	SDNegativePrompt string  `yaml:"sd_negative_prompt"`
	SDThreads        int     `yaml:"sd_threads"` // CPU threads for general-processor inference (0 = auto)

	// Image-to-video (stage 2 of the video job)
	SDVideoModelPath   string `yaml:"sd_video_model_path"`
	SVDBaseSteps       int    `yaml:"svd_base_steps"` // Steps for the stage 1 still image
	SVDFrames          int    `yaml:"svd_frames"`
	SVDDecodeChunkSize int    `yaml:"svd_decode_chunk_size"`
	SVDMotionBucketID  int    `yaml:"svd_motion_bucket_id"`
	SVDFPS             int    `yaml:"svd_fps"`

	// External tools
	FFmpegPath   string        `yaml:"ffmpeg_path"`
	PdftoppmPath string        `yaml:"pdftoppm_path"`
	RasterDPI    int           `yaml:"raster_dpi"`
	ToolTimeout  time.Duration `yaml:"tool_timeout"` // 0 means no timeout

	// Prompt enhancement (Ollama-compatible endpoint)
	PromptLLMURL       string        `yaml:"prompt_llm_url"`
	PromptModel        string        `yaml:"prompt_model"`
	PromptTimeout      time.Duration `yaml:"prompt_timeout"`
	PromptProbeTimeout time.Duration `yaml:"prompt_probe_timeout"`
	PromptMaxTokens    int           `yaml:"prompt_max_tokens"`
	PromptTemperature  float64       `yaml:"prompt_temperature"`

	// Story generation (OpenAI-compatible local text server)
	TextLLMURL          string        `yaml:"text_llm_url"`
	StoryModel          string        `yaml:"story_model"`
	StoryMaxTokens      int           `yaml:"story_max_tokens"`
	StoryTemperature    float64       `yaml:"story_temperature"`
	StoryTopP           float64       `yaml:"story_top_p"`
	StoryTimeout        time.Duration `yaml:"story_timeout"`
	StoryMaxSourceChars int           `yaml:"story_max_source_chars"`

	// API Keys (optional; local endpoints ignore them)
	OpenAIAPIKey         string `yaml:"-"`
	AllowSelfSignedCerts bool   `yaml:"allow_self_signed_certs"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseDir:    ".",
		StorageDir: "storage",
		ScratchDir: filepath.Join("public", "uploads"),

		LogLevel: "info",

		AcceleratorEnabled: true,
		NvidiaSMIPath:      "nvidia-smi",
		DeviceProbeTimeout: 5 * time.Second,

		SeedMax: 1_000_000_000,

		SDImageSize:      512,
		SDInferenceSteps: 50,
		SDGuidanceScale:  11.5,
		SDStrength:       0.9,
		SDNegativePrompt: DefaultNegativePrompt,

		SVDBaseSteps:       25,
		SVDFrames:          25,
		SVDDecodeChunkSize: 4,
		SVDMotionBucketID:  100,
		SVDFPS:             7,

		FFmpegPath:   "ffmpeg",
		PdftoppmPath: "pdftoppm",
		RasterDPI:    100,

		PromptLLMURL:       "http://localhost:11434/v1",
		PromptModel:        "llama3",
		PromptTimeout:      120 * time.Second,
		PromptProbeTimeout: 5 * time.Second,
		PromptMaxTokens:    2048,
		PromptTemperature:  0.7,

		TextLLMURL:          "http://127.0.0.1:1234/v1",
		StoryModel:          "mistral-7b-instruct-v0.2",
		StoryMaxTokens:      1024,
		StoryTemperature:    0.7,
		StoryTopP:           0.95,
		StoryTimeout:        10 * time.Minute,
		StoryMaxSourceChars: 16000,
	}
}

// LoadConfig resolves the configuration from defaults, the optional
// GENJOB_CONFIG YAML file and the environment, then validates it.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("GENJOB_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the keys present in a YAML file onto cfg.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrConfigFileUnreadable(path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return ErrConfigFileInvalid(path, err)
	}
	return nil
}

// applyEnv overrides fields whose environment variable is set.
// The current field value acts as the default.
func (c *Config) applyEnv() {
	c.BaseDir = GetEnvOrDefault("GENJOB_BASE_DIR", c.BaseDir)
	c.StorageDir = GetEnvOrDefault("GENJOB_STORAGE_DIR", c.StorageDir)
	c.ScratchDir = GetEnvOrDefault("GENJOB_SCRATCH_DIR", c.ScratchDir)

	c.LogLevel = GetEnvOrDefault("GENJOB_LOG_LEVEL", c.LogLevel)
	c.LogFile = GetEnvOrDefault("GENJOB_LOG_FILE", c.LogFile)
	c.DevMode = ParseBoolEnv("DEV_MODE", c.DevMode)

	c.AcceleratorEnabled = ParseBoolEnv("GENJOB_ACCELERATOR", c.AcceleratorEnabled)
	c.NvidiaSMIPath = GetEnvOrDefault("NVIDIA_SMI_PATH", c.NvidiaSMIPath)
	c.DeviceProbeTimeout = ParseDurationEnv("GENJOB_DEVICE_PROBE_TIMEOUT", c.DeviceProbeTimeout)

	c.SeedMax = ParseInt64Env("GENJOB_SEED_MAX", c.SeedMax)

	c.SDModelPath = GetEnvOrDefault("SD_MODEL_PATH", c.SDModelPath)
	c.SDImageSize = ParseIntEnv("SD_IMAGE_SIZE", c.SDImageSize)
	c.SDInferenceSteps = ParseIntEnv("SD_INFERENCE_STEPS", c.SDInferenceSteps)
	c.SDGuidanceScale = ParseFloat64Env("SD_GUIDANCE_SCALE", c.SDGuidanceScale)
	c.SDStrength = ParseFloat64Env("SD_STRENGTH", c.SDStrength)
	c.SDNegativePrompt = GetEnvOrDefault("SD_NEGATIVE_PROMPT", c.SDNegativePrompt)
	c.SDThreads = ParseIntEnv("SD_THREADS", c.SDThreads)

	c.SDVideoModelPath = GetEnvOrDefault("SD_VIDEO_MODEL_PATH", c.SDVideoModelPath)
	c.SVDBaseSteps = ParseIntEnv("SVD_BASE_STEPS", c.SVDBaseSteps)
	c.SVDFrames = ParseIntEnv("SVD_FRAMES", c.SVDFrames)
	c.SVDDecodeChunkSize = ParseIntEnv("SVD_DECODE_CHUNK", c.SVDDecodeChunkSize)
	c.SVDMotionBucketID = ParseIntEnv("SVD_MOTION_BUCKET", c.SVDMotionBucketID)
	c.SVDFPS = ParseIntEnv("SVD_FPS", c.SVDFPS)

	c.FFmpegPath = GetEnvOrDefault("FFMPEG_PATH", c.FFmpegPath)
	c.PdftoppmPath = GetEnvOrDefault("PDFTOPPM_PATH", c.PdftoppmPath)
	c.RasterDPI = ParseIntEnv("GENJOB_RASTER_DPI", c.RasterDPI)
	c.ToolTimeout = ParseDurationEnv("GENJOB_TOOL_TIMEOUT", c.ToolTimeout)

	c.PromptLLMURL = GetEnvOrDefault("PROMPT_LLM_URL", c.PromptLLMURL)
	c.PromptModel = GetEnvOrDefault("PROMPT_MODEL", c.PromptModel)
	c.PromptTimeout = ParseDurationEnv("PROMPT_TIMEOUT", c.PromptTimeout)
	c.PromptMaxTokens = ParseIntEnv("PROMPT_MAX_TOKENS", c.PromptMaxTokens)

	c.TextLLMURL = GetEnvOrDefault("TEXT_LLM_URL", c.TextLLMURL)
	c.StoryModel = GetEnvOrDefault("STORY_MODEL", c.StoryModel)
	c.StoryMaxTokens = ParseIntEnv("STORY_MAX_TOKENS", c.StoryMaxTokens)
	c.StoryTimeout = ParseDurationEnv("STORY_TIMEOUT", c.StoryTimeout)
	c.StoryMaxSourceChars = ParseIntEnv("STORY_MAX_SOURCE_CHARS", c.StoryMaxSourceChars)

	c.OpenAIAPIKey = GetEnvOrDefault("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.AllowSelfSignedCerts = ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", c.AllowSelfSignedCerts)
}

// Validate checks value ranges. It returns the first problem found as a *ConfigError.
func (c *Config) Validate() error {
	if c.SeedMax < 1 {
		return ErrInvalidValue("GENJOB_SEED_MAX", c.SeedMax, "must be at least 1")
	}
	if c.SDImageSize%8 != 0 {
		return ErrInvalidValue("SD_IMAGE_SIZE", c.SDImageSize, "must be divisible by 8")
	}
	if c.SDImageSize < 128 || c.SDImageSize > 2048 {
		return ErrInvalidValue("SD_IMAGE_SIZE", c.SDImageSize, "must be between 128 and 2048")
	}
	if c.SDInferenceSteps < 1 || c.SDInferenceSteps > 150 {
		return ErrInvalidValue("SD_INFERENCE_STEPS", c.SDInferenceSteps, "must be between 1 and 150")
	}
	if c.SVDBaseSteps < 1 || c.SVDBaseSteps > 150 {
		return ErrInvalidValue("SVD_BASE_STEPS", c.SVDBaseSteps, "must be between 1 and 150")
	}
	if c.SDGuidanceScale < 1.0 || c.SDGuidanceScale > 30.0 {
		return ErrInvalidValue("SD_GUIDANCE_SCALE", c.SDGuidanceScale, "must be between 1.0 and 30.0")
	}
	if c.SDStrength <= 0 || c.SDStrength > 1 {
		return ErrInvalidValue("SD_STRENGTH", c.SDStrength, "must be in (0, 1]")
	}
	if c.SVDFrames < 1 {
		return ErrInvalidValue("SVD_FRAMES", c.SVDFrames, "must be positive")
	}
	if c.SVDDecodeChunkSize < 1 {
		return ErrInvalidValue("SVD_DECODE_CHUNK", c.SVDDecodeChunkSize, "must be positive")
	}
	if c.SVDFPS < 1 {
		return ErrInvalidValue("SVD_FPS", c.SVDFPS, "must be positive")
	}
	if c.RasterDPI < 10 || c.RasterDPI > 1200 {
		return ErrInvalidValue("GENJOB_RASTER_DPI", c.RasterDPI, "must be between 10 and 1200")
	}
	if c.ToolTimeout < 0 {
		return ErrInvalidValue("GENJOB_TOOL_TIMEOUT", c.ToolTimeout, "must not be negative")
	}
	if c.PromptMaxTokens < 1 || c.StoryMaxTokens < 1 {
		return ErrInvalidValue("PROMPT_MAX_TOKENS/STORY_MAX_TOKENS", c.PromptMaxTokens, "must be positive")
	}
	if c.StoryMaxSourceChars < 1 {
		return ErrInvalidValue("STORY_MAX_SOURCE_CHARS", c.StoryMaxSourceChars, "must be positive")
	}
	if err := validateEndpoint("PROMPT_LLM_URL", c.PromptLLMURL); err != nil {
		return err
	}
	return validateEndpoint("TEXT_LLM_URL", c.TextLLMURL)
}

func validateEndpoint(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL(key, raw, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL(key, raw, "scheme must be http or https")
	}
	if u.Host == "" {
		return ErrInvalidURL(key, raw, "missing host")
	}
	return nil
}

// StorageRoot returns the absolute-or-relative directory that holds job outputs.
func (c *Config) StorageRoot() string {
	return filepath.Join(c.BaseDir, c.StorageDir)
}

// ScratchRoot returns the parent directory for temporary frame sets.
func (c *Config) ScratchRoot() string {
	if filepath.IsAbs(c.ScratchDir) {
		return c.ScratchDir
	}
	return filepath.Join(c.BaseDir, c.ScratchDir)
}

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts.
// All LLM endpoint clients are built through it.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}
