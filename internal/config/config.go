// Package config loads the CLI configuration.
//
// Load order, later sources winning: built-in defaults, the optional YAML
// file, a .env file in the working directory, then the process environment.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fpang/etsyflow/internal/chat"
	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/export"
	"github.com/fpang/etsyflow/internal/filehandler"
	"github.com/fpang/etsyflow/internal/remote"
)

// Enhancement backends.
const (
	BackendGemini   = "gemini"
	BackendUpscaler = "upscaler"
)

// Config is the full CLI configuration.
type Config struct {
	// GeminiAPIKey is required unless GeminiAPIKeySSMParam is set. Never logged.
	GeminiAPIKey         string `yaml:"gemini_api_key"`
	GeminiAPIKeySSMParam string `yaml:"gemini_api_key_ssm_param"`

	AnalysisModel      string `yaml:"analysis_model"`
	EnhancementModel   string `yaml:"enhancement_model"`
	EnhancementBackend string `yaml:"enhancement_backend"`

	// Required iff EnhancementBackend is "upscaler". UpscalerKey is never logged.
	UpscalerURL string `yaml:"upscaler_url"`
	UpscalerKey string `yaml:"upscaler_key"`

	QualityTier     string `yaml:"quality_tier"`
	GlobalPrompt    string `yaml:"global_prompt"`
	UseGlobalPrompt bool   `yaml:"use_global_prompt"`

	InterCallDelay      time.Duration `yaml:"inter_call_delay"`
	MaxAttempts         int           `yaml:"max_attempts"`
	BaseDelay           time.Duration `yaml:"base_delay"`
	MaxDelay            time.Duration `yaml:"max_delay"`
	CallTimeout         time.Duration `yaml:"call_timeout"`
	AnalysisConcurrency int           `yaml:"analysis_concurrency"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxDimension   int   `yaml:"max_dimension"`
	JPEGQuality    int   `yaml:"jpeg_quality"`

	FallbackToOriginal bool   `yaml:"fallback_to_original"`
	ArchiveCompression string `yaml:"archive_compression"`
	OutputDir          string `yaml:"output_dir"`

	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		AnalysisModel:      chat.DefaultAnalysisModel,
		EnhancementModel:   chat.DefaultEnhancementModel,
		EnhancementBackend: BackendGemini,
		QualityTier:        string(domain.TierStandard),
		InterCallDelay:     time.Second,
		MaxAttempts:        3,
		BaseDelay:          time.Second,
		MaxDelay:           10 * time.Second,
		CallTimeout:        120 * time.Second,
		MaxUploadBytes:     filehandler.DefaultMaxBytes,
		MaxDimension:       filehandler.DefaultMaxDimension,
		JPEGQuality:        filehandler.DefaultJPEGQuality,
		ArchiveCompression: export.CompressionDeflate,
		OutputDir:          ".",
		LogLevel:           "info",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), .env, and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if cfg.GeminiAPIKey != "" {
			log.Warn().Str("path", path).Msg("Config file contains gemini_api_key, prefer GEMINI_API_KEY or an SSM parameter")
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"GEMINI_API_KEY":               &c.GeminiAPIKey,
		"GEMINI_API_KEY_SSM_PARAM":     &c.GeminiAPIKeySSMParam,
		"ETSYFLOW_ANALYSIS_MODEL":      &c.AnalysisModel,
		"ETSYFLOW_ENHANCEMENT_MODEL":   &c.EnhancementModel,
		"ETSYFLOW_ENHANCEMENT_BACKEND": &c.EnhancementBackend,
		"ETSYFLOW_UPSCALER_URL":        &c.UpscalerURL,
		"ETSYFLOW_UPSCALER_KEY":        &c.UpscalerKey,
		"ETSYFLOW_QUALITY_TIER":        &c.QualityTier,
		"ETSYFLOW_GLOBAL_PROMPT":       &c.GlobalPrompt,
		"ETSYFLOW_ARCHIVE_COMPRESSION": &c.ArchiveCompression,
		"ETSYFLOW_OUTPUT_DIR":          &c.OutputDir,
		"ETSYFLOW_S3_BUCKET":           &c.S3Bucket,
		"ETSYFLOW_S3_PREFIX":           &c.S3Prefix,
		"ETSYFLOW_LOG_LEVEL":           &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"ETSYFLOW_USE_GLOBAL_PROMPT":    &c.UseGlobalPrompt,
		"ETSYFLOW_FALLBACK_TO_ORIGINAL": &c.FallbackToOriginal,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"ETSYFLOW_INTER_CALL_DELAY": &c.InterCallDelay,
		"ETSYFLOW_CALL_TIMEOUT":     &c.CallTimeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"ETSYFLOW_MAX_ATTEMPTS":         &c.MaxAttempts,
		"ETSYFLOW_ANALYSIS_CONCURRENCY": &c.AnalysisConcurrency,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate checks enums, bounds and backend-specific requirements. It does
// not require the Gemini key, which may still come from SSM.
func (c *Config) Validate() error {
	var errs []error

	if _, err := domain.ParseQualityTier(c.QualityTier); err != nil {
		errs = append(errs, err)
	}
	switch c.EnhancementBackend {
	case BackendGemini:
	case BackendUpscaler:
		if c.UpscalerURL == "" {
			errs = append(errs, errors.New("upscaler_url is required for the upscaler backend"))
		}
		if c.UpscalerKey == "" {
			errs = append(errs, errors.New("upscaler_key is required for the upscaler backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown enhancement_backend %q (want %s or %s)", c.EnhancementBackend, BackendGemini, BackendUpscaler))
	}
	switch c.ArchiveCompression {
	case export.CompressionDeflate, export.CompressionZstd:
	default:
		errs = append(errs, fmt.Errorf("unknown archive_compression %q", c.ArchiveCompression))
	}

	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("max_attempts must be at least 1"))
	}
	if c.BaseDelay <= 0 || c.MaxDelay < c.BaseDelay {
		errs = append(errs, errors.New("base_delay must be positive and not above max_delay"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("call_timeout must be positive"))
	}
	if c.InterCallDelay < 0 {
		errs = append(errs, errors.New("inter_call_delay must not be negative"))
	}
	if c.AnalysisConcurrency < 0 {
		errs = append(errs, errors.New("analysis_concurrency must not be negative"))
	}
	if c.MaxUploadBytes <= 0 || c.MaxDimension <= 0 {
		errs = append(errs, errors.New("max_upload_bytes and max_dimension must be positive"))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, errors.New("jpeg_quality must be between 1 and 100"))
	}
	return errors.Join(errs...)
}

// Tier returns the parsed quality tier, falling back to standard.
func (c *Config) Tier() domain.QualityTier {
	tier, err := domain.ParseQualityTier(c.QualityTier)
	if err != nil {
		return domain.TierStandard
	}
	return tier
}

// Policy returns the retry policy for remote calls.
func (c *Config) Policy() remote.Policy {
	return remote.Policy{
		MaxAttempts:    c.MaxAttempts,
		BaseDelay:      c.BaseDelay,
		MaxDelay:       c.MaxDelay,
		AttemptTimeout: c.CallTimeout,
	}
}
