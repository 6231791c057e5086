// Package domain holds the value types shared by the normalizer, the remote
// service clients, the batch orchestrator and the export packager.
package domain

import (
	"fmt"
	"strings"
)

// RawFile is one uploaded file as it arrives at the ingestion boundary.
// Size is the declared size in bytes; when it is zero the length of Data is used.
type RawFile struct {
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
}

// ByteSize returns the size used for the upload limit check.
func (f RawFile) ByteSize() int64 {
	if f.Size > 0 {
		return f.Size
	}
	return int64(len(f.Data))
}

// ImageInput is the read-only view of a normalized asset that is handed to a
// remote service for a single call. Callers must not mutate Data.
type ImageInput struct {
	Data     []byte
	MIMEType string
	Base64   string
	Width    int
	Height   int
}

// DataURI returns the image as a base64 data URI.
func (in ImageInput) DataURI() string {
	return "data:" + in.MIMEType + ";base64," + in.Base64
}

// QualityTier is the named level of enhancement effort.
type QualityTier string

const (
	// TierStandard is the "polish" tier rendered at 2K.
	TierStandard QualityTier = "standard"
	// TierHigh is the "master" tier rendered at 4K.
	TierHigh QualityTier = "high"
)

// ParseQualityTier accepts the tier names plus the polish/master aliases.
func ParseQualityTier(s string) (QualityTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "polish":
		return TierStandard, nil
	case "high", "master", "high-fidelity":
		return TierHigh, nil
	default:
		return "", fmt.Errorf("unknown quality tier %q (want standard or high)", s)
	}
}

// ImageSize is the output size requested from the image model for the tier.
func (t QualityTier) ImageSize() string {
	if t == TierHigh {
		return "4K"
	}
	return "2K"
}

// ProductMetadata is the structured listing metadata derived by an analysis call.
type ProductMetadata struct {
	Title             string   `json:"title"`
	Tags              []string `json:"tags"`
	Category          string   `json:"category"`
	VisualDescription string   `json:"visualDescription"`
	// SuggestedPrompt is a refinement the user may adopt. It is never applied automatically.
	SuggestedPrompt string `json:"suggestedPrompt,omitempty"`
}

// EnhanceRequest is the input of one enhancement call.
type EnhanceRequest struct {
	AssetID     string
	Image       ImageInput
	Tier        QualityTier
	AspectRatio string
	// PreserveSubject is always true when built by the orchestrator.
	PreserveSubject bool
	// Refinement is the optional user prompt appended to the instruction.
	Refinement string
}

// EnhanceResult is the output of a successful enhancement call. Exactly one of
// Data or URL is set.
type EnhanceResult struct {
	Data     []byte
	MIMEType string
	URL      string
	// Text is any commentary the model returned alongside the image.
	Text string
}

// HasImage reports whether the result carries image bytes or a reference.
func (r *EnhanceResult) HasImage() bool {
	return r != nil && (len(r.Data) > 0 || r.URL != "")
}

// AnalyzeRequest is the input of one analysis call.
type AnalyzeRequest struct {
	AssetID string
	Image   ImageInput
	// Context is optional capture metadata (camera, date) for the prompt.
	Context string
}
