package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fpang/etsyflow/internal/batch"
	"github.com/fpang/etsyflow/internal/config"
	"github.com/fpang/etsyflow/internal/domain"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "etsyflow dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestEnhancementModelLabel(t *testing.T) {
	cfg := config.Default()
	if got := enhancementModelLabel(cfg); got != cfg.EnhancementModel {
		t.Errorf("gemini label = %q", got)
	}
	cfg.EnhancementBackend = config.BackendUpscaler
	cfg.UpscalerURL = "https://upscaler.example/esrgan"
	if got := enhancementModelLabel(cfg); got != cfg.UpscalerURL {
		t.Errorf("upscaler label = %q", got)
	}
}

func TestListings(t *testing.T) {
	snap := batch.BatchSnapshot{Assets: []batch.AssetSnapshot{
		{Name: "mug.jpg", State: batch.StateReady, Resolution: domain.ResolutionNeedsEnhancement, Metadata: &domain.ProductMetadata{Title: "Mug"}},
		{Name: "bad.heic", State: batch.StateError, LastError: "unsupported"},
	}}
	got := listings(snap)
	if len(got) != 2 {
		t.Fatalf("listings() = %d entries", len(got))
	}
	if got[0].Metadata.Title != "Mug" || got[0].State != "ready" {
		t.Errorf("first listing = %+v", got[0])
	}
	if got[1].Error != "unsupported" || got[1].Metadata != nil {
		t.Errorf("second listing = %+v", got[1])
	}
}
