package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fpang/etsyflow/internal/assets"
	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/remote"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Etsy listing limits.
const (
	MaxTitleLength = 140
	MaxTags        = 13
	MaxTagLength   = 20
)

// listingSchema is the structured output requested from the analysis model.
var listingSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {
			Type:        genai.TypeString,
			Description: "SEO optimized product title for Etsy (max 140 chars)",
		},
		"tags": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "5-7 relevant search tags",
		},
		"category": {
			Type:        genai.TypeString,
			Description: "Best fit Etsy category",
		},
		"visualDescription": {
			Type:        genai.TypeString,
			Description: "Brief visual description of textures and materials",
		},
	},
	Required: []string{"title", "tags", "category", "visualDescription"},
}

// Analyzer derives listing metadata from a product photo.
type Analyzer struct {
	Models ContentGenerator
	Model  string
	Policy remote.Policy
}

// NewAnalyzer returns an Analyzer. An empty model uses DefaultAnalysisModel.
func NewAnalyzer(models ContentGenerator, model string, policy remote.Policy) *Analyzer {
	if model == "" {
		model = DefaultAnalysisModel
	}
	return &Analyzer{Models: models, Model: model, Policy: policy}
}

// Analyze runs one analysis call with retries and returns normalized metadata.
func (a *Analyzer) Analyze(ctx context.Context, req domain.AnalyzeRequest) (*domain.ProductMetadata, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			imagePart(req.Image.Data, req.Image.MIMEType),
			{Text: assets.RenderAnalysisPrompt(req.Context)},
		},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.AnalysisSystemPrompt}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   listingSchema,
	}

	log.Debug().
		Str("asset", req.AssetID).
		Str("model", a.Model).
		Int("image_bytes", len(req.Image.Data)).
		Msg("Sending image for listing analysis")

	start := time.Now()
	meta, err := remote.Do(ctx, a.Policy, "analyze", func(ctx context.Context) (*domain.ProductMetadata, error) {
		resp, err := a.Models.GenerateContent(ctx, a.Model, contents, config)
		if err != nil {
			return nil, err
		}
		if err := checkResponse("analyze", resp); err != nil {
			return nil, err
		}
		return parseListing(responseText(resp))
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("asset", req.AssetID).
		Str("model", a.Model).
		Str("title", truncateString(meta.Title, 60)).
		Int("tags", len(meta.Tags)).
		Dur("duration", time.Since(start)).
		Msg("Listing analysis complete")

	return meta, nil
}

func parseListing(text string) (*domain.ProductMetadata, error) {
	if strings.TrimSpace(text) == "" {
		return nil, remote.Errorf(remote.ErrMalformedResponse, "analyze", "no text in response")
	}
	meta, err := parseJSONObject[domain.ProductMetadata](text)
	if err != nil {
		return nil, &remote.Error{Kind: remote.ErrMalformedResponse, Op: "analyze", Err: err}
	}

	meta.Title = truncateRunes(strings.Join(strings.Fields(meta.Title), " "), MaxTitleLength)
	if meta.Title == "" {
		return nil, remote.Errorf(remote.ErrMalformedResponse, "analyze", "response has no title")
	}
	meta.Tags = NormalizeTags(meta.Tags)
	meta.Category = strings.TrimSpace(meta.Category)
	meta.VisualDescription = strings.TrimSpace(meta.VisualDescription)
	meta.SuggestedPrompt = SuggestPrompt(meta.VisualDescription)
	return &meta, nil
}

// NormalizeTags trims, shortens and de-duplicates tags case-insensitively,
// keeping at most MaxTags in their original order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = truncateRunes(strings.Join(strings.Fields(tag), " "), MaxTagLength)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

// SuggestPrompt turns a visual description into a refinement the user can adopt.
func SuggestPrompt(visualDescription string) string {
	desc := strings.TrimRight(strings.TrimSpace(visualDescription), ".")
	if desc == "" {
		return ""
	}
	return "Stage the product in a clean, softly lit scene that flatters these details: " + desc + "."
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
