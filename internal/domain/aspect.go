package domain

// Supported output aspect ratios.
const (
	AspectWide      = "16:9"
	AspectLandscape = "4:3"
	AspectSquare    = "1:1"
	AspectPortrait  = "3:4"
	AspectTall      = "9:16"
)

// AspectRatioFor maps source dimensions to the nearest supported output ratio:
// >1.5 wide, >1.2 landscape, <0.6 tall, <0.8 portrait, otherwise square.
func AspectRatioFor(width, height int) string {
	if width <= 0 || height <= 0 {
		return AspectSquare
	}
	ratio := float64(width) / float64(height)
	switch {
	case ratio > 1.5:
		return AspectWide
	case ratio > 1.2:
		return AspectLandscape
	case ratio < 0.6:
		return AspectTall
	case ratio < 0.8:
		return AspectPortrait
	default:
		return AspectSquare
	}
}
