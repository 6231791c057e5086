package domain

// MinPublishDimension is the smallest width and height accepted for publishing.
const MinPublishDimension = 2000

// ResolutionClass tags an asset as meeting or failing the publish minimum.
type ResolutionClass string

const (
	ResolutionSufficient       ResolutionClass = "sufficient"
	ResolutionNeedsEnhancement ResolutionClass = "needsEnhancement"
)

// Classify returns ResolutionSufficient only when both axes reach MinPublishDimension.
func Classify(width, height int) ResolutionClass {
	if width >= MinPublishDimension && height >= MinPublishDimension {
		return ResolutionSufficient
	}
	return ResolutionNeedsEnhancement
}
