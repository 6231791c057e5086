package chat

import (
	"strings"

	"github.com/fpang/etsyflow/internal/remote"
	"google.golang.org/genai"
)

var safetyFinishReasons = map[genai.FinishReason]bool{
	genai.FinishReasonSafety:            true,
	genai.FinishReasonProhibitedContent: true,
	genai.FinishReasonBlocklist:         true,
	genai.FinishReason("SPII"):          true,
	genai.FinishReason("IMAGE_SAFETY"):  true,
}

// checkResponse rejects nil, blocked and empty responses.
func checkResponse(op string, resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return remote.Errorf(remote.ErrMalformedResponse, op, "empty response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return remote.Errorf(remote.ErrSafety, op, "prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return remote.Errorf(remote.ErrMalformedResponse, op, "response has no candidates")
	}
	for _, c := range resp.Candidates {
		if c != nil && safetyFinishReasons[c.FinishReason] {
			return remote.Errorf(remote.ErrSafety, op, "generation stopped: %s", c.FinishReason)
		}
	}
	return nil
}

// responseText concatenates non-thought text parts of all candidates.
func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part != nil && !part.Thought && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}

// responseImage returns the last non-thought inline image, which is the final render.
func responseImage(resp *genai.GenerateContentResponse) *genai.Blob {
	var found *genai.Blob
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part == nil || part.Thought || part.InlineData == nil {
				continue
			}
			if len(part.InlineData.Data) > 0 && strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				found = part.InlineData
			}
		}
	}
	return found
}
