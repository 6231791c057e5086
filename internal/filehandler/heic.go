package filehandler

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Converter turns a legacy container upload into a decodable raster.
type Converter interface {
	Convert(ctx context.Context, data []byte, name string) ([]byte, string, error)
}

// sequenceBrands are ftyp brands of HEIF image sequences (live photos, bursts),
// which cannot be flattened into a single still.
var sequenceBrands = map[string]bool{
	"msf1": true,
	"hevc": true,
	"hevx": true,
	"hevs": true,
}

// FFmpegConverter converts HEIC/HEIF to PNG using the ffmpeg binary.
type FFmpegConverter struct {
	// Path to ffmpeg. Empty looks it up on PATH.
	Path string
}

// Convert writes data to a temp file, runs ffmpeg, and returns PNG bytes.
// Image sequences and a missing ffmpeg fail with ErrUnsupportedContainer.
func (c FFmpegConverter) Convert(ctx context.Context, data []byte, name string) ([]byte, string, error) {
	if brand, ok := majorBrand(data); ok && sequenceBrands[brand] {
		return nil, "", fmt.Errorf("%w: %s is a photo sequence (brand %q); export a single still from your photo app as JPEG", ErrUnsupportedContainer, name, brand)
	}

	ffmpegPath := c.Path
	if ffmpegPath == "" {
		var err error
		ffmpegPath, err = exec.LookPath("ffmpeg")
		if err != nil {
			return nil, "", fmt.Errorf("%w: ffmpeg not found, install ffmpeg or convert %s to JPEG first", ErrUnsupportedContainer, name)
		}
	}

	tmpDir, err := os.MkdirTemp("", "heic-*")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, "input"+filepath.Ext(name))
	outPath := filepath.Join(tmpDir, "output.png")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, "", fmt.Errorf("failed to write temp input: %w", err)
	}

	// -frames:v 1 keeps only the primary image of the container
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", inPath,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "png",
		"-y", outPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Warn().
			Str("file", name).
			Str("ffmpeg_output", string(bytes.TrimSpace(output))).
			Msg("ffmpeg HEIC conversion failed")
		return nil, "", fmt.Errorf("%w: could not convert %s (%v); export it from your photo app as JPEG", ErrUnsupportedContainer, name, err)
	}

	png, err := os.ReadFile(outPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read converted image: %w", err)
	}

	log.Debug().
		Str("file", name).
		Int("input_bytes", len(data)).
		Int("output_bytes", len(png)).
		Msg("HEIC converted to PNG")

	return png, "image/png", nil
}

// majorBrand returns the major brand of an ISO BMFF ftyp box at the start of data.
func majorBrand(data []byte) (string, bool) {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return "", false
	}
	if size := binary.BigEndian.Uint32(data[0:4]); size < 12 {
		return "", false
	}
	return string(data[8:12]), true
}
