package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/etsyflow/internal/batch"
	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/remote"
)

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{42 * time.Second, "0:42"},
		{3*time.Minute + 5*time.Second, "3:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDurationShort(tt.d); got != tt.want {
			t.Errorf("FormatDurationShort(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestPromptForDirectory(t *testing.T) {
	var out bytes.Buffer
	if got := PromptForDirectory(strings.NewReader("  /photos/shop \n"), &out); got != "/photos/shop" {
		t.Errorf("PromptForDirectory() = %q", got)
	}
	if !strings.Contains(out.String(), "Product photo directory") {
		t.Errorf("prompt = %q", out.String())
	}

	cwd, _ := os.Getwd()
	if got := PromptForDirectory(strings.NewReader("\n"), &out); got != cwd {
		t.Errorf("empty answer = %q, want %q", got, cwd)
	}
	if got := PromptForDirectory(strings.NewReader(""), &out); got != cwd {
		t.Errorf("EOF answer = %q, want %q", got, cwd)
	}
}

func TestValidateAndResolveDirectory(t *testing.T) {
	dir := t.TempDir()
	got, err := ValidateAndResolveDirectory(dir)
	if err != nil || !filepath.IsAbs(got) {
		t.Errorf("ValidateAndResolveDirectory(dir) = %q, %v", got, err)
	}

	file := filepath.Join(dir, "a.jpg")
	_ = os.WriteFile(file, []byte("x"), 0o600)
	if _, err := ValidateAndResolveDirectory(file); err == nil {
		t.Error("file accepted as directory")
	}
	if _, err := ValidateAndResolveDirectory(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing directory accepted")
	}
}

func TestPrintCredentialHalt(t *testing.T) {
	var buf bytes.Buffer
	if !PrintCredentialHalt(&buf, fmt.Errorf("pass: %w", remote.Errorf(remote.ErrCredential, "enhance", "API_KEY_INVALID"))) {
		t.Fatal("credential error not recognized")
	}
	if !strings.Contains(buf.String(), "GEMINI_API_KEY") {
		t.Errorf("call-to-action missing key instructions: %q", buf.String())
	}

	buf.Reset()
	if PrintCredentialHalt(&buf, remote.Errorf(remote.ErrSafety, "enhance", "blocked")) {
		t.Error("safety error treated as credential halt")
	}
	if buf.Len() != 0 {
		t.Errorf("output written for non-credential error: %q", buf.String())
	}
}

func TestPrintBatchSummary(t *testing.T) {
	snap := batch.BatchSnapshot{Assets: []batch.AssetSnapshot{
		{Name: "mug.jpg", State: batch.StateCompleted, Width: 2048, Height: 1536, SourceWidth: 4032, SourceHeight: 3024, Resolution: domain.ResolutionSufficient},
		{Name: "vase.heic", State: batch.StateError, LastError: "unsupported container"},
	}}
	var buf bytes.Buffer
	PrintBatchSummary(&buf, snap, 65*time.Second)
	out := buf.String()
	for _, want := range []string{"mug.jpg (4032x3024", "vase.heic: unsupported container", "1 completed, 1 error in 1:05"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
