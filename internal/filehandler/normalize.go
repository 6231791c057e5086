package filehandler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/preview"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Normalization errors. Each is fatal for the asset and never retried.
var (
	ErrSizeLimitExceeded    = errors.New("file exceeds the upload size limit")
	ErrUnsupportedContainer = errors.New("unsupported photo container")
	ErrDecodeFailure        = errors.New("image could not be decoded")
)

const (
	// DefaultMaxBytes is the upload limit checked before any decoding.
	DefaultMaxBytes = 10 << 20
	// DefaultMaxDimension bounds the long edge of a normalized asset.
	DefaultMaxDimension = 2048
	// DefaultJPEGQuality is used whenever an asset is re-encoded.
	DefaultJPEGQuality = 90
	// maxSourcePixels rejects decompression bombs before a full decode.
	maxSourcePixels = 120_000_000
)

// NormalizedAsset is the output of a successful normalization.
type NormalizedAsset struct {
	Data     []byte
	MIMEType string
	Base64   string
	Width    int
	Height   int

	// Source dimensions before downsampling.
	SourceWidth  int
	SourceHeight int

	Converted   bool
	Downsampled bool

	Preview  *preview.Handle
	Metadata *ImageMetadata
}

// Input returns the read-only view handed to remote services.
func (a *NormalizedAsset) Input() domain.ImageInput {
	return domain.ImageInput{
		Data:     a.Data,
		MIMEType: a.MIMEType,
		Base64:   a.Base64,
		Width:    a.Width,
		Height:   a.Height,
	}
}

// Normalizer decodes uploads into memory-bounded assets.
type Normalizer struct {
	MaxBytes     int64
	MaxDimension int
	JPEGQuality  int
	Converter    Converter
	Previews     preview.Store
}

// NewNormalizer returns a Normalizer with default bounds and the ffmpeg converter.
func NewNormalizer(previews preview.Store) *Normalizer {
	return &Normalizer{
		MaxBytes:     DefaultMaxBytes,
		MaxDimension: DefaultMaxDimension,
		JPEGQuality:  DefaultJPEGQuality,
		Converter:    FFmpegConverter{},
		Previews:     previews,
	}
}

// Normalize validates and re-encodes one upload. On success exactly one
// preview is allocated; on failure none is.
func (n *Normalizer) Normalize(ctx context.Context, raw domain.RawFile) (*NormalizedAsset, error) {
	maxBytes := n.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if size := raw.ByteSize(); size > maxBytes {
		return nil, fmt.Errorf("%w: %s is %.1f MB, limit is %.0f MB", ErrSizeLimitExceeded, raw.Name, float64(size)/(1<<20), float64(maxBytes)/(1<<20))
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDecodeFailure, raw.Name)
	}

	data, mimeType := raw.Data, raw.MIMEType
	if mimeType == "" {
		mimeType = GetMIMEType(raw.Name)
	}

	converted := false
	if IsLegacyContainer(raw.Name, raw.MIMEType) {
		if n.Converter == nil {
			return nil, fmt.Errorf("%w: no converter configured for %s", ErrUnsupportedContainer, raw.Name)
		}
		out, outMIME, err := n.Converter.Convert(ctx, data, raw.Name)
		if err != nil {
			if errors.Is(err, ErrUnsupportedContainer) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedContainer, raw.Name, err)
		}
		data, mimeType = out, outMIME
		converted = true
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, raw.Name, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, fmt.Errorf("%w: %s has unsupported dimensions %dx%d", ErrDecodeFailure, raw.Name, cfg.Width, cfg.Height)
	}

	meta, err := ExtractImageMetadata(raw.Data)
	if err != nil {
		log.Debug().Err(err).Str("file", raw.Name).Msg("No EXIF metadata")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, raw.Name, err)
	}

	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()
	// Any non-upright EXIF orientation forces a re-encode.
	reoriented := meta.NeedsReorientation() || srcWidth != cfg.Width || srcHeight != cfg.Height

	maxDim := n.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	width, height := FitDimensions(srcWidth, srcHeight, maxDim)
	downsampled := width != srcWidth || height != srcHeight
	if downsampled {
		resized := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	if converted || downsampled || reoriented || !passthroughFormat(format) {
		quality := n.JPEGQuality
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		data, err = encodeJPEG(img, quality)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, raw.Name, err)
		}
		mimeType = "image/jpeg"
	} else {
		mimeType = "image/" + format
	}

	asset := &NormalizedAsset{
		Data:         data,
		MIMEType:     mimeType,
		Base64:       base64.StdEncoding.EncodeToString(data),
		Width:        width,
		Height:       height,
		SourceWidth:  srcWidth,
		SourceHeight: srcHeight,
		Converted:    converted,
		Downsampled:  downsampled,
	}

	if !meta.IsEmpty() {
		asset.Metadata = meta
	}

	if n.Previews != nil {
		asset.Preview, err = n.Previews.Create(raw.Name, data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate preview for %s: %w", raw.Name, err)
		}
	}

	log.Info().
		Str("file", raw.Name).
		Str("format", format).
		Int("source_width", srcWidth).
		Int("source_height", srcHeight).
		Int("width", width).
		Int("height", height).
		Bool("converted", converted).
		Bool("downsampled", downsampled).
		Bool("reoriented", reoriented).
		Int("output_bytes", len(data)).
		Msg("Asset normalized")

	return asset, nil
}

// FitDimensions scales width and height so the long edge is at most maxDim,
// preserving aspect ratio. Dimensions already within bounds are unchanged.
func FitDimensions(width, height, maxDim int) (int, int) {
	if width <= maxDim && height <= maxDim {
		return width, height
	}
	if width >= height {
		h := int(float64(height)*float64(maxDim)/float64(width) + 0.5)
		return maxDim, max(h, 1)
	}
	w := int(float64(width)*float64(maxDim)/float64(height) + 0.5)
	return max(w, 1), maxDim
}

// passthroughFormat reports whether source bytes of this format can be sent as-is.
func passthroughFormat(format string) bool {
	return format == "jpeg" || format == "png" || format == "webp"
}

// encodeJPEG flattens any transparency onto white before encoding.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	b := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(flat, flat.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
