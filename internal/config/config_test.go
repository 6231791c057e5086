package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/remote"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Tier() != domain.TierStandard {
		t.Errorf("Tier() = %s, want standard", cfg.Tier())
	}
	p := cfg.Policy()
	if p.MaxAttempts != 3 || p.BaseDelay != time.Second || p.MaxDelay != 10*time.Second || p.AttemptTimeout != 120*time.Second {
		t.Errorf("Policy() = %+v", p)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "etsyflow.yaml")
	yamlData := `
quality_tier: master
inter_call_delay: 3s
max_attempts: 5
global_prompt: "on white linen"
archive_compression: zstd
s3_bucket: from-yaml
`
	if err := os.WriteFile(path, []byte(yamlData), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ETSYFLOW_S3_BUCKET", "from-env")
	t.Setenv("ETSYFLOW_USE_GLOBAL_PROMPT", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tier() != domain.TierHigh {
		t.Errorf("Tier() = %s, want high", cfg.Tier())
	}
	if cfg.InterCallDelay != 3*time.Second {
		t.Errorf("InterCallDelay = %v, want 3s", cfg.InterCallDelay)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.S3Bucket != "from-env" {
		t.Errorf("S3Bucket = %q, want environment to win", cfg.S3Bucket)
	}
	if !cfg.UseGlobalPrompt || cfg.GlobalPrompt != "on white linen" {
		t.Errorf("global prompt = %q/%v", cfg.GlobalPrompt, cfg.UseGlobalPrompt)
	}
	if cfg.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want default kept", cfg.BaseDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ETSYFLOW_LOG_LEVEL=debug\nETSYFLOW_ANALYSIS_CONCURRENCY=4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("ETSYFLOW_LOG_LEVEL")
		os.Unsetenv("ETSYFLOW_ANALYSIS_CONCURRENCY")
	})

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.AnalysisConcurrency != 4 {
		t.Errorf("cfg = level %q concurrency %d, want values from .env", cfg.LogLevel, cfg.AnalysisConcurrency)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() with missing file returned nil error")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("max_attempts: [1, 2"), 0o600)
	if _, err := Load(bad); err == nil {
		t.Error("Load() with invalid YAML returned nil error")
	}

	t.Setenv("ETSYFLOW_MAX_ATTEMPTS", "lots")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "ETSYFLOW_MAX_ATTEMPTS") {
		t.Errorf("Load() error = %v, want invalid ETSYFLOW_MAX_ATTEMPTS", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad tier", func(c *Config) { c.QualityTier = "ultra" }, "unknown quality tier"},
		{"bad backend", func(c *Config) { c.EnhancementBackend = "magic" }, "unknown enhancement_backend"},
		{"upscaler without url", func(c *Config) { c.EnhancementBackend = BackendUpscaler; c.UpscalerKey = "k" }, "upscaler_url"},
		{"upscaler without key", func(c *Config) { c.EnhancementBackend = BackendUpscaler; c.UpscalerURL = "https://x" }, "upscaler_key"},
		{"bad compression", func(c *Config) { c.ArchiveCompression = "rar" }, "archive_compression"},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "max_attempts"},
		{"inverted delays", func(c *Config) { c.MaxDelay = time.Millisecond }, "base_delay"},
		{"negative concurrency", func(c *Config) { c.AnalysisConcurrency = -1 }, "analysis_concurrency"},
		{"jpeg quality", func(c *Config) { c.JPEGQuality = 101 }, "jpeg_quality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

type fakeSSM struct {
	value string
	err   error
	input *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(f.value)}}, nil
}

func TestResolveAPIKey(t *testing.T) {
	t.Run("env key wins", func(t *testing.T) {
		cfg := Default()
		cfg.GeminiAPIKey = "direct"
		cfg.GeminiAPIKeySSMParam = "/etsyflow/gemini"
		client := &fakeSSM{value: "from-ssm"}
		if err := cfg.ResolveAPIKey(context.Background(), client); err != nil {
			t.Fatalf("ResolveAPIKey() error = %v", err)
		}
		if cfg.GeminiAPIKey != "direct" || client.input != nil {
			t.Error("SSM consulted although a key was configured")
		}
	})

	t.Run("from ssm", func(t *testing.T) {
		cfg := Default()
		cfg.GeminiAPIKeySSMParam = "/etsyflow/gemini"
		client := &fakeSSM{value: "from-ssm"}
		if !cfg.NeedsSSM() {
			t.Error("NeedsSSM() = false")
		}
		if err := cfg.ResolveAPIKey(context.Background(), client); err != nil {
			t.Fatalf("ResolveAPIKey() error = %v", err)
		}
		if cfg.GeminiAPIKey != "from-ssm" {
			t.Errorf("GeminiAPIKey not resolved")
		}
		if !aws.ToBool(client.input.WithDecryption) {
			t.Error("WithDecryption not set")
		}
	})

	t.Run("missing", func(t *testing.T) {
		cfg := Default()
		if err := cfg.ResolveAPIKey(context.Background(), nil); !errors.Is(err, remote.ErrCredential) {
			t.Errorf("ResolveAPIKey() error = %v, want ErrCredential", err)
		}
	})

	t.Run("ssm failure", func(t *testing.T) {
		cfg := Default()
		cfg.GeminiAPIKeySSMParam = "/etsyflow/gemini"
		err := cfg.ResolveAPIKey(context.Background(), &fakeSSM{err: errors.New("AccessDenied")})
		if !errors.Is(err, remote.ErrCredential) {
			t.Errorf("ResolveAPIKey() error = %v, want ErrCredential", err)
		}
	})

	t.Run("empty parameter", func(t *testing.T) {
		cfg := Default()
		cfg.GeminiAPIKeySSMParam = "/etsyflow/gemini"
		if err := cfg.ResolveAPIKey(context.Background(), &fakeSSM{}); !errors.Is(err, remote.ErrCredential) {
			t.Errorf("ResolveAPIKey() error = %v, want ErrCredential", err)
		}
	})
}
