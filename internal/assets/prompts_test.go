package assets

import (
	"strings"
	"testing"
)

func TestRenderEnhancementPrompt(t *testing.T) {
	tests := []struct {
		name       string
		high       bool
		refinement string
		wantHeader string
	}{
		{"standard", false, "", "2K STUDIO POLISH"},
		{"high", true, "", "PROFESSIONAL 4K PRODUCT MASTER"},
		{"refined", false, "  warm walnut table  ", "2K STUDIO POLISH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderEnhancementPrompt(tt.high, "4:3", tt.refinement)
			if !strings.HasPrefix(got, tt.wantHeader) {
				t.Errorf("prompt does not start with %q:\n%s", tt.wantHeader, got)
			}
			if !strings.Contains(got, "PRESERVE THE PRODUCT AS A LOCKED ASSET") {
				t.Error("prompt is missing the subject preservation rules")
			}
			if !strings.Contains(got, "4:3 frame") {
				t.Error("prompt is missing the aspect ratio")
			}
			hasRefinement := strings.Contains(got, "USER SPECIFIC REFINEMENT: warm walnut table")
			if hasRefinement != (tt.refinement != "") {
				t.Errorf("refinement present = %v, want %v", hasRefinement, tt.refinement != "")
			}
		})
	}
}

func TestRenderAnalysisPrompt(t *testing.T) {
	plain := RenderAnalysisPrompt("")
	if !strings.Contains(plain, "140 characters") {
		t.Errorf("analysis prompt lacks title limit:\n%s", plain)
	}
	withMeta := RenderAnalysisPrompt("Capture details:\n- Camera: Apple iPhone 15 Pro")
	if !strings.Contains(withMeta, "iPhone 15 Pro") {
		t.Error("metadata context not rendered")
	}
}
