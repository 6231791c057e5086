package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/etsyflow/internal/remote"
)

// SSMGetter is the subset of *ssm.Client used to resolve secrets.
type SSMGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NeedsSSM reports whether the API key must be read from Parameter Store.
func (c *Config) NeedsSSM() bool {
	return c.GeminiAPIKey == "" && c.GeminiAPIKeySSMParam != ""
}

// ResolveAPIKey fills GeminiAPIKey from SSM when it is not already set.
// A missing key is reported as remote.ErrCredential.
func (c *Config) ResolveAPIKey(ctx context.Context, client SSMGetter) error {
	if c.GeminiAPIKey != "" {
		return nil
	}
	if c.GeminiAPIKeySSMParam == "" || client == nil {
		return &remote.Error{
			Kind: remote.ErrCredential,
			Op:   "config",
			Err:  fmt.Errorf("set GEMINI_API_KEY or GEMINI_API_KEY_SSM_PARAM"),
		}
	}

	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.GeminiAPIKeySSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return &remote.Error{
			Kind: remote.ErrCredential,
			Op:   "config",
			Err:  fmt.Errorf("failed to read API key from SSM parameter %s: %w", c.GeminiAPIKeySSMParam, err),
		}
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return &remote.Error{
			Kind: remote.ErrCredential,
			Op:   "config",
			Err:  fmt.Errorf("SSM parameter %s is empty", c.GeminiAPIKeySSMParam),
		}
	}
	c.GeminiAPIKey = aws.ToString(result.Parameter.Value)

	log.Debug().
		Str("param", c.GeminiAPIKeySSMParam).
		Dur("elapsed", time.Since(start)).
		Msg("Gemini API key loaded from SSM")
	return nil
}
