package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/etsyflow/internal/chat"
	"github.com/fpang/etsyflow/internal/config"
)

// InitGeminiClient resolves the API key (from SSM when configured) and
// creates a Gemini client.
func InitGeminiClient(ctx context.Context, cfg *config.Config) (*genai.Client, error) {
	if cfg.NeedsSSM() {
		awsCfg, err := LoadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolveAPIKey(ctx, NewSSMClient(awsCfg)); err != nil {
			return nil, err
		}
	} else if err := cfg.ResolveAPIKey(ctx, nil); err != nil {
		return nil, err
	}

	client, err := chat.NewGeminiClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Info().Msg("Gemini client initialized")
	return client, nil
}

// LoadAWSConfig loads the default AWS credential chain and region.
func LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}
