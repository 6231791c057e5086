package chat

// Gemini Model IDs
//
// | Model Name               | API Model ID               | Use Case                     |
// |--------------------------|----------------------------|------------------------------|
// | Gemini 3 Flash (Preview) | gemini-3-flash-preview     | Listing analysis (vision)    |
// | Gemini 3 Pro Image       | gemini-3-pro-image-preview | Product photo regeneration   |
// | Gemini 2.5 Flash Image   | gemini-2.5-flash-image     | Cheaper regeneration, 1K max |
const (
	// ModelGemini3FlashPreview is best for speed + intelligence.
	ModelGemini3FlashPreview = "gemini-3-flash-preview"

	// ModelGemini3ProImage supports 2K and 4K output sizes.
	ModelGemini3ProImage = "gemini-3-pro-image-preview"

	// ModelGemini25FlashImage ignores the requested image size.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"
)

const (
	DefaultAnalysisModel    = ModelGemini3FlashPreview
	DefaultEnhancementModel = ModelGemini3ProImage
)
