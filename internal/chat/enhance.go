package chat

import (
	"context"
	"time"

	"github.com/fpang/etsyflow/internal/assets"
	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/remote"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Enhancer regenerates product photos with a Gemini image model.
type Enhancer struct {
	Models ContentGenerator
	Model  string
	Policy remote.Policy
}

// NewEnhancer returns an Enhancer. An empty model uses DefaultEnhancementModel.
func NewEnhancer(models ContentGenerator, model string, policy remote.Policy) *Enhancer {
	if model == "" {
		model = DefaultEnhancementModel
	}
	return &Enhancer{Models: models, Model: model, Policy: policy}
}

// BuildEnhanceCall builds the contents and config of an enhancement call.
// The subject preservation rules are part of both the system instruction and
// the user turn, whatever the request says.
func BuildEnhanceCall(req domain.EnhanceRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = domain.AspectRatioFor(req.Image.Width, req.Image.Height)
	}
	instruction := assets.RenderEnhancementPrompt(req.Tier == domain.TierHigh, aspect, req.Refinement)

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			imagePart(req.Image.Data, req.Image.MIMEType),
			{Text: instruction},
		},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.SubjectPreservationRules}},
		},
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: aspect,
			ImageSize:   req.Tier.ImageSize(),
		},
	}
	return contents, config
}

// Enhance runs one enhancement call with retries.
func (e *Enhancer) Enhance(ctx context.Context, req domain.EnhanceRequest) (*domain.EnhanceResult, error) {
	if !req.PreserveSubject {
		log.Warn().Str("asset", req.AssetID).Msg("Enhancement request without subject preservation flag, rules are applied anyway")
	}
	contents, config := BuildEnhanceCall(req)

	log.Info().
		Str("asset", req.AssetID).
		Str("model", e.Model).
		Str("tier", string(req.Tier)).
		Str("aspect_ratio", config.ImageConfig.AspectRatio).
		Int("image_bytes", len(req.Image.Data)).
		Msg("Starting product photo enhancement")

	start := time.Now()
	result, err := remote.Do(ctx, e.Policy, "enhance", func(ctx context.Context) (*domain.EnhanceResult, error) {
		resp, err := e.Models.GenerateContent(ctx, e.Model, contents, config)
		if err != nil {
			return nil, err
		}
		if err := checkResponse("enhance", resp); err != nil {
			return nil, err
		}
		text := responseText(resp)
		blob := responseImage(resp)
		if blob == nil {
			return nil, remote.Errorf(remote.ErrMalformedResponse, "enhance", "no image returned in response (text: %s)", truncateString(text, 200))
		}
		return &domain.EnhanceResult{Data: blob.Data, MIMEType: blob.MIMEType, Text: text}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("asset", req.AssetID).
		Int("output_bytes", len(result.Data)).
		Str("output_mime", result.MIMEType).
		Dur("duration", time.Since(start)).
		Msg("Product photo enhancement complete")

	return result, nil
}
