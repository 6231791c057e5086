package domain

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          ResolutionClass
	}{
		{"small square", 1800, 1800, ResolutionNeedsEnhancement},
		{"both above", 2200, 2100, ResolutionSufficient},
		{"exact threshold", 2000, 2000, ResolutionSufficient},
		{"wide but short", 4000, 1999, ResolutionNeedsEnhancement},
		{"tall but narrow", 1500, 3000, ResolutionNeedsEnhancement},
		{"zero", 0, 0, ResolutionNeedsEnhancement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := Classify(tt.width, tt.height)
			second := Classify(tt.width, tt.height)
			if first != tt.want {
				t.Errorf("Classify(%d, %d) = %s, want %s", tt.width, tt.height, first, tt.want)
			}
			if first != second {
				t.Errorf("Classify is not stable: %s then %s", first, second)
			}
		})
	}
}

func TestParseQualityTier(t *testing.T) {
	tests := []struct {
		in      string
		want    QualityTier
		wantErr bool
	}{
		{"", TierStandard, false},
		{"standard", TierStandard, false},
		{"Polish", TierStandard, false},
		{"high", TierHigh, false},
		{"master", TierHigh, false},
		{"ultra", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQualityTier(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseQualityTier(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseQualityTier(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestQualityTierImageSize(t *testing.T) {
	if got := TierStandard.ImageSize(); got != "2K" {
		t.Errorf("standard ImageSize = %s, want 2K", got)
	}
	if got := TierHigh.ImageSize(); got != "4K" {
		t.Errorf("high ImageSize = %s, want 4K", got)
	}
}

func TestRawFileByteSize(t *testing.T) {
	if got := (RawFile{Data: make([]byte, 12)}).ByteSize(); got != 12 {
		t.Errorf("ByteSize from data = %d, want 12", got)
	}
	if got := (RawFile{Size: 99, Data: make([]byte, 12)}).ByteSize(); got != 99 {
		t.Errorf("ByteSize from declared size = %d, want 99", got)
	}
}

func TestAspectRatioFor(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{1600, 900, AspectWide},
		{900, 1600, AspectTall},
		{1000, 1000, AspectSquare},
		{1300, 1000, AspectLandscape},
		{1000, 1300, AspectPortrait},
		{1500, 1000, AspectLandscape},
		{1100, 1000, AspectSquare},
		{0, 100, AspectSquare},
	}
	for _, tt := range tests {
		if got := AspectRatioFor(tt.w, tt.h); got != tt.want {
			t.Errorf("AspectRatioFor(%d, %d) = %s, want %s", tt.w, tt.h, got, tt.want)
		}
	}
}
