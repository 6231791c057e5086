// Package filehandler turns uploaded files into normalized, memory-bounded
// assets: size gate, legacy container conversion, EXIF-aware decode,
// downsampling and re-encoding.
package filehandler

import (
	"path/filepath"
	"strings"
)

// SupportedImageExtensions maps accepted upload extensions to MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
}

// legacyContainerMIMETypes are the declared media types of HEIC/HEIF uploads.
var legacyContainerMIMETypes = map[string]bool{
	"image/heic":          true,
	"image/heif":          true,
	"image/heic-sequence": true,
	"image/heif-sequence": true,
}

// GetMIMEType returns the MIME type for a file name, or "" if unsupported.
func GetMIMEType(name string) string {
	return SupportedImageExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsImage reports whether the extension is an accepted image extension.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// IsLegacyContainer reports whether an upload is HEIC/HEIF, judged only by
// its file extension and declared media type.
func IsLegacyContainer(name, mimeType string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".heic" || ext == ".heif" {
		return true
	}
	return legacyContainerMIMETypes[strings.ToLower(strings.TrimSpace(mimeType))]
}
