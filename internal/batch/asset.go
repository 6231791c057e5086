package batch

import (
	"slices"

	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/filehandler"
	"github.com/fpang/etsyflow/internal/preview"
)

// asset is the mutable record owned by the Orchestrator. Every field is
// guarded by Orchestrator.mu except norm, which is immutable once set.
type asset struct {
	id   string
	name string

	// source keeps the original upload when normalization failed.
	source     []byte
	sourceMIME string

	norm       *filehandler.NormalizedAsset
	resolution domain.ResolutionClass

	state           State
	userPrompt      string
	metadata        *domain.ProductMetadata
	result          *domain.EnhanceResult
	effectivePrompt string
	lastError       string
	errKind         error

	// pending is set while the asset waits in a running enhancement pass.
	pending bool
	// released guards the preview against double release.
	released bool
}

// AssetSnapshot is an immutable copy of an asset at one point in time.
type AssetSnapshot struct {
	ID           string
	Name         string
	State        State
	Removed      bool
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
	MIMEType     string
	Resolution   domain.ResolutionClass
	Preview      *preview.Handle
	Capture      *filehandler.ImageMetadata

	UserPrompt      string
	Metadata        *domain.ProductMetadata
	EffectivePrompt string
	Result          *domain.EnhanceResult
	LastError       string
	// ErrorKind is the classified sentinel behind LastError, if any.
	ErrorKind error
}

// HasResult reports whether a final image is available.
func (s AssetSnapshot) HasResult() bool {
	return s.Result.HasImage()
}

func (a *asset) snapshot() AssetSnapshot {
	s := AssetSnapshot{
		ID:              a.id,
		Name:            a.name,
		State:           a.state,
		Resolution:      a.resolution,
		UserPrompt:      a.userPrompt,
		EffectivePrompt: a.effectivePrompt,
		Result:          a.result,
		LastError:       a.lastError,
		ErrorKind:       a.errKind,
		MIMEType:        a.sourceMIME,
	}
	if a.norm != nil {
		s.Width, s.Height = a.norm.Width, a.norm.Height
		s.SourceWidth, s.SourceHeight = a.norm.SourceWidth, a.norm.SourceHeight
		s.MIMEType = a.norm.MIMEType
		s.Capture = a.norm.Metadata
		if !a.released {
			s.Preview = a.norm.Preview
		}
	}
	if a.metadata != nil {
		meta := *a.metadata
		meta.Tags = slices.Clone(a.metadata.Tags)
		s.Metadata = &meta
	}
	return s
}
