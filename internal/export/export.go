// Package export packages completed assets into a downloadable archive.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"github.com/fpang/etsyflow/internal/batch"
	"github.com/fpang/etsyflow/internal/s3util"
	"github.com/fpang/etsyflow/internal/upscale"
)

// DefaultArchiveName is the file name used when none is configured.
const DefaultArchiveName = "etsyflow-optimized-assets.zip"

// ListingsFile is the name of the listing metadata CSV inside the archive.
const ListingsFile = "listings.csv"

// ZipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const ZipMethodZstd uint16 = 93

// Compression names accepted by Packager.
const (
	CompressionDeflate = "deflate"
	CompressionZstd    = "zstd"
)

// ErrNothingToExport is returned when no asset has a result.
var ErrNothingToExport = errors.New("no completed assets to export")

// Manifest describes what was written to an archive.
type Manifest struct {
	Files   []string
	Skipped []Skip
}

// Skip records an asset left out of the archive.
type Skip struct {
	ID     string
	Name   string
	Reason string
}

// Packager writes completed assets as PNG files into a ZIP archive.
type Packager struct {
	Compression string
	// HTTPClient downloads results that are only available by URL.
	HTTPClient *http.Client
}

// NewPackager returns a Packager for the given compression name.
func NewPackager(compression string) (*Packager, error) {
	switch compression {
	case "", CompressionDeflate:
		compression = CompressionDeflate
	case CompressionZstd:
	default:
		return nil, fmt.Errorf("unknown archive compression %q", compression)
	}
	return &Packager{
		Compression: compression,
		HTTPClient:  upscale.NewHTTPClient(2 * time.Minute),
	}, nil
}

func (p *Packager) method() uint16 {
	if p.Compression == CompressionZstd {
		return ZipMethodZstd
	}
	return zip.Deflate
}

func registerCompressors(zw *zip.Writer) {
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	zw.RegisterCompressor(ZipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})
}

// Write streams an archive of every asset that carries a result. Assets
// without one, or whose result cannot be fetched or decoded, are listed in
// Manifest.Skipped. It fails only when no asset could be written.
func (p *Packager) Write(ctx context.Context, w io.Writer, assets []batch.AssetSnapshot) (*Manifest, error) {
	manifest := &Manifest{}
	var exportable []batch.AssetSnapshot
	for _, a := range assets {
		if a.State == batch.StateCompleted && a.HasResult() {
			exportable = append(exportable, a)
		} else {
			manifest.skip(a, "no result in state "+string(a.State))
		}
	}
	if len(exportable) == 0 {
		return manifest, ErrNothingToExport
	}

	zw := zip.NewWriter(w)
	registerCompressors(zw)

	names := newNamer()
	rows := [][]string{{"file", "title", "tags", "category", "description"}}
	method := p.method()

	for _, a := range exportable {
		if err := ctx.Err(); err != nil {
			return manifest, err
		}
		data, err := p.resultPNG(ctx, a)
		if err != nil {
			log.Warn().Err(err).Str("asset", a.ID).Str("file", a.Name).Msg("Skipping result that could not be exported")
			manifest.skip(a, err.Error())
			continue
		}
		name := names.next(a.Name)
		if err := writeEntry(zw, name, method, data); err != nil {
			return manifest, err
		}
		manifest.Files = append(manifest.Files, name)
		rows = append(rows, listingRow(name, a))

		log.Debug().
			Str("asset", a.ID).
			Str("entry", name).
			Int("bytes", len(data)).
			Msg("Added file to archive")
	}

	if len(manifest.Files) == 0 {
		return manifest, fmt.Errorf("%w: every result failed to export", ErrNothingToExport)
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(rows); err != nil {
		return manifest, fmt.Errorf("failed to write listings: %w", err)
	}
	if err := writeEntry(zw, ListingsFile, method, buf.Bytes()); err != nil {
		return manifest, err
	}

	if err := zw.Close(); err != nil {
		return manifest, fmt.Errorf("failed to finalize archive: %w", err)
	}

	log.Info().
		Int("files", len(manifest.Files)).
		Int("skipped", len(manifest.Skipped)).
		Str("compression", p.Compression).
		Msg("Archive written")

	return manifest, nil
}

func (m *Manifest) skip(a batch.AssetSnapshot, reason string) {
	m.Skipped = append(m.Skipped, Skip{ID: a.ID, Name: a.Name, Reason: reason})
}

// WriteFile writes the archive to path, removing it again on failure.
func (p *Packager) WriteFile(ctx context.Context, path string, assets []batch.AssetSnapshot) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	manifest, err := p.Write(ctx, f, assets)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return manifest, err
	}
	return manifest, nil
}

// UploadArchive uploads a written archive to bucket under prefix and returns
// the object key.
func UploadArchive(ctx context.Context, client s3util.PutObjectAPI, bucket, prefix, path string) (string, error) {
	return s3util.UploadFile(ctx, client, bucket, s3util.ObjectKey(prefix, path), path, "application/zip")
}

func writeEntry(zw *zip.Writer, name string, method uint16, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   method,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to create zip entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write zip entry %s: %w", name, err)
	}
	return nil
}

// resultPNG returns the asset's result as PNG bytes, downloading it first
// when only a URL is available.
func (p *Packager) resultPNG(ctx context.Context, a batch.AssetSnapshot) ([]byte, error) {
	data, mimeType := a.Result.Data, a.Result.MIMEType
	if len(data) == 0 {
		var err error
		data, mimeType, err = upscale.Fetch(ctx, p.HTTPClient, a.Result.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch result: %w", err)
		}
	}
	return toPNG(data, mimeType)
}

func toPNG(data []byte, mimeType string) ([]byte, error) {
	if mimeType == "image/png" {
		return data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode result image: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func listingRow(file string, a batch.AssetSnapshot) []string {
	row := []string{file, "", "", "", ""}
	if m := a.Metadata; m != nil {
		row[1] = m.Title
		row[2] = strings.Join(m.Tags, ", ")
		row[3] = m.Category
		row[4] = m.VisualDescription
	}
	return row
}

// namer produces optimized-<base>.png names, suffixing -2, -3, ... on
// case-insensitive collisions.
type namer struct {
	used map[string]bool
}

func newNamer() *namer {
	return &namer{used: make(map[string]bool)}
}

func (n *namer) next(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "image"
	}
	stem := "optimized-" + base
	name := stem
	for i := 2; n.used[strings.ToLower(name)]; i++ {
		name = fmt.Sprintf("%s-%d", stem, i)
	}
	n.used[strings.ToLower(name)] = true
	return name + ".png"
}
