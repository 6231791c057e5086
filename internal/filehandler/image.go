package filehandler

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// ImageMetadata is the subset of EXIF recorded on an asset. GPS is never
// read so product listings cannot leak a seller's location.
type ImageMetadata struct {
	CameraMake  string    `json:"cameraMake,omitempty"`
	CameraModel string    `json:"cameraModel,omitempty"`
	DateTaken   time.Time `json:"dateTaken,omitempty"`

	// Orientation is the EXIF orientation tag (1-8, 0 when absent).
	Orientation int `json:"-"`
}

// IsEmpty reports whether no field was found.
func (m *ImageMetadata) IsEmpty() bool {
	return m == nil || (m.CameraMake == "" && m.CameraModel == "" && m.DateTaken.IsZero())
}

// NeedsReorientation reports whether the stored pixels must be rotated or
// mirrored to display upright.
func (m *ImageMetadata) NeedsReorientation() bool {
	return m != nil && m.Orientation > 1 && m.Orientation <= 8
}

// ExtractImageMetadata decodes EXIF from JPEG, HEIC or TIFF bytes.
func ExtractImageMetadata(data []byte) (*ImageMetadata, error) {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	metadata := &ImageMetadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
		Orientation: int(exifData.Orientation),
	}

	// DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		metadata.DateTaken = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		metadata.DateTaken = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		metadata.DateTaken = exifData.ModifyDate()
	}

	log.Debug().
		Str("make", metadata.CameraMake).
		Str("model", metadata.CameraModel).
		Bool("has_date", !metadata.DateTaken.IsZero()).
		Int("orientation", metadata.Orientation).
		Msg("Image metadata extraction complete")

	return metadata, nil
}

// FormatMetadataContext formats the metadata as a short block for prompts.
// It returns "" when nothing is known.
func (m *ImageMetadata) FormatMetadataContext() string {
	if m.IsEmpty() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Capture details:\n")
	if camera := strings.TrimSpace(m.CameraMake + " " + m.CameraModel); camera != "" {
		fmt.Fprintf(&sb, "- Camera: %s\n", camera)
	}
	if !m.DateTaken.IsZero() {
		fmt.Fprintf(&sb, "- Taken: %s\n", m.DateTaken.Format("2006-01-02"))
	}
	return sb.String()
}
