package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/remote"
	"google.golang.org/genai"
)

// fakeGenerator replays canned responses and records every request.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	errs      []error
	models    []string
	contents  [][]*genai.Content
	configs   []*genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.models)
	f.models = append(f.models, model)
	f.contents = append(f.contents, contents)
	f.configs = append(f.configs, config)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func imageResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Relit the scene."},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func noSleepPolicy() remote.Policy {
	return remote.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func testInput() domain.ImageInput {
	return domain.ImageInput{Data: []byte("jpeg"), MIMEType: "image/jpeg", Base64: "anBlZw==", Width: 1600, Height: 900}
}

func TestAnalyze_ParsesFencedJSON(t *testing.T) {
	body := "```json\n" + `{"title":"  Handmade   Ceramic Mug ","tags":["mug","Mug","pottery"," stoneware ",""],"category":"Home & Living","visualDescription":"Speckled glaze with a matte finish."}` + "\n```"
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{textResponse(body)}}
	a := NewAnalyzer(gen, "", noSleepPolicy())

	meta, err := a.Analyze(context.Background(), domain.AnalyzeRequest{AssetID: "a1", Image: testInput(), Context: "Capture details:\n- Camera: Apple"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if meta.Title != "Handmade Ceramic Mug" {
		t.Errorf("Title = %q", meta.Title)
	}
	if strings.Join(meta.Tags, ",") != "mug,pottery,stoneware" {
		t.Errorf("Tags = %v", meta.Tags)
	}
	if meta.SuggestedPrompt == "" || !strings.Contains(meta.SuggestedPrompt, "Speckled glaze") {
		t.Errorf("SuggestedPrompt = %q", meta.SuggestedPrompt)
	}
	if gen.models[0] != DefaultAnalysisModel {
		t.Errorf("model = %s, want %s", gen.models[0], DefaultAnalysisModel)
	}
	cfg := gen.configs[0]
	if cfg.ResponseMIMEType != "application/json" || cfg.ResponseSchema == nil {
		t.Error("analysis call did not request structured JSON")
	}
	prompt := gen.contents[0][0].Parts[1].Text
	if !strings.Contains(prompt, "Camera: Apple") {
		t.Error("capture context missing from prompt")
	}
}

func TestAnalyze_Failures(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{"not json", textResponse("I cannot help with that"), remote.ErrMalformedResponse},
		{"no title", textResponse(`{"title":"","tags":[]}`), remote.ErrMalformedResponse},
		{"no candidates", &genai.GenerateContentResponse{}, remote.ErrMalformedResponse},
		{"blocked prompt", &genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety}}, remote.ErrSafety},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{tt.resp}}
			_, err := NewAnalyzer(gen, "", noSleepPolicy()).Analyze(context.Background(), domain.AnalyzeRequest{Image: testInput()})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(gen.models) != 1 {
				t.Errorf("calls = %d, want 1 (not retried)", len(gen.models))
			}
		})
	}
}

func TestEnhance_RequestCarriesPreservationRules(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{imageResponse([]byte("png-bytes"))}}
	e := NewEnhancer(gen, "", noSleepPolicy())

	req := domain.EnhanceRequest{
		AssetID:         "a1",
		Image:           testInput(),
		Tier:            domain.TierHigh,
		PreserveSubject: true,
		Refinement:      "rustic oak table",
	}
	result, err := e.Enhance(context.Background(), req)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if string(result.Data) != "png-bytes" || result.MIMEType != "image/png" {
		t.Errorf("result = %q %s", result.Data, result.MIMEType)
	}

	cfg := gen.configs[0]
	if cfg.ImageConfig == nil || cfg.ImageConfig.AspectRatio != domain.AspectWide || cfg.ImageConfig.ImageSize != "4K" {
		t.Errorf("ImageConfig = %+v, want 16:9 at 4K", cfg.ImageConfig)
	}
	if !strings.Contains(cfg.SystemInstruction.Parts[0].Text, "PRESERVE THE PRODUCT AS A LOCKED ASSET") {
		t.Error("system instruction lacks subject preservation rules")
	}
	parts := gen.contents[0][0].Parts
	if parts[0].InlineData == nil || parts[0].InlineData.MIMEType != "image/jpeg" {
		t.Error("source image not attached")
	}
	instruction := parts[1].Text
	for _, want := range []string{"DO NOT modify the product's shape", "USER SPECIFIC REFINEMENT: rustic oak table", "4K"} {
		if !strings.Contains(instruction, want) {
			t.Errorf("instruction missing %q", want)
		}
	}
}

func TestBuildEnhanceCall_AlwaysPreserves(t *testing.T) {
	contents, cfg := BuildEnhanceCall(domain.EnhanceRequest{Image: testInput(), Tier: domain.TierStandard})
	if !strings.Contains(contents[0].Parts[1].Text, "LOCKED ASSET") {
		t.Error("rules missing when PreserveSubject is false")
	}
	if cfg.ImageConfig.ImageSize != "2K" {
		t.Errorf("ImageSize = %s, want 2K", cfg.ImageConfig.ImageSize)
	}
}

func TestEnhance_RetriesTransientThenSucceeds(t *testing.T) {
	overloaded := genai.APIError{Code: 503, Message: "The model is overloaded."}
	gen := &fakeGenerator{
		errs:      []error{overloaded, overloaded, nil},
		responses: []*genai.GenerateContentResponse{nil, nil, imageResponse([]byte("ok"))},
	}
	result, err := NewEnhancer(gen, "", noSleepPolicy()).Enhance(context.Background(), domain.EnhanceRequest{Image: testInput(), PreserveSubject: true})
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if len(gen.models) != 3 || string(result.Data) != "ok" {
		t.Errorf("calls = %d result = %q", len(gen.models), result.Data)
	}
}

func TestEnhance_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		resp *genai.GenerateContentResponse
		want error
	}{
		{"credential", genai.APIError{Code: 400, Message: "API key not valid.", Status: "INVALID_ARGUMENT"}, nil, remote.ErrCredential},
		{"text only", nil, textResponse("I can't edit this image"), remote.ErrMalformedResponse},
		{"safety finish", nil, &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}, remote.ErrSafety},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{errs: []error{tt.err}, responses: []*genai.GenerateContentResponse{tt.resp}}
			_, err := NewEnhancer(gen, "", noSleepPolicy()).Enhance(context.Background(), domain.EnhanceRequest{Image: testInput(), PreserveSubject: true})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(gen.models) != 1 {
				t.Errorf("calls = %d, want 1", len(gen.models))
			}
		})
	}
}

func TestNormalizeTags_Caps(t *testing.T) {
	var tags []string
	for i := 0; i < 20; i++ {
		tags = append(tags, strings.Repeat("x", i+1))
	}
	got := NormalizeTags(tags)
	if len(got) != MaxTags {
		t.Errorf("len = %d, want %d", len(got), MaxTags)
	}
	long := NormalizeTags([]string{"an extremely long handmade pottery tag"})
	if len([]rune(long[0])) > MaxTagLength {
		t.Errorf("tag not shortened: %q", long[0])
	}
}
