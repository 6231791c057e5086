package filehandler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fpang/etsyflow/internal/domain"
	"github.com/rs/zerolog/log"
)

// ScanOptions configures directory scanning behavior.
type ScanOptions struct {
	// MaxDepth limits recursion depth. 0 = unlimited, 1 = top-level only.
	MaxDepth int

	// Limit caps the number of images returned. 0 = unlimited.
	Limit int

	// MaxBytes skips reading files larger than this; they are still returned
	// with their size so the normalizer can reject them. 0 = read everything.
	MaxBytes int64
}

// ScanDirectory walks dirPath and returns every supported image as a RawFile,
// sorted by path. Symlinks to directories are skipped.
func ScanDirectory(dirPath string, opts ScanOptions) ([]domain.RawFile, error) {
	log.Info().
		Str("path", dirPath).
		Int("max_depth", opts.MaxDepth).
		Int("limit", opts.Limit).
		Msg("Scanning directory for images")

	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", dirPath)
		}
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dirPath)
	}

	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	baseDepth := strings.Count(absPath, string(os.PathSeparator))

	var paths []string
	err = filepath.WalkDir(absPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error accessing path, skipping")
			return nil
		}

		if d.IsDir() {
			if opts.MaxDepth > 0 && path != absPath {
				if strings.Count(path, string(os.PathSeparator))-baseDepth >= opts.MaxDepth {
					return fs.SkipDir
				}
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil || target.IsDir() {
				log.Debug().Str("path", path).Msg("Skipping symlink")
				return nil
			}
		}

		if !IsImage(filepath.Ext(d.Name())) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(paths)
	limitReached := false
	if opts.Limit > 0 && len(paths) > opts.Limit {
		paths = paths[:opts.Limit]
		limitReached = true
	}

	files := make([]domain.RawFile, 0, len(paths))
	for _, path := range paths {
		raw, err := readRawFile(path, opts.MaxBytes)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Failed to read image, skipping")
			continue
		}
		files = append(files, raw)
	}

	logEvent := log.Info().
		Int("total_images", len(files)).
		Str("directory", dirPath)
	if limitReached {
		logEvent.Bool("limit_reached", true)
	}
	logEvent.Msg("Directory scan complete")

	return files, nil
}

func readRawFile(path string, maxBytes int64) (domain.RawFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.RawFile{}, err
	}
	raw := domain.RawFile{
		Name:     filepath.Base(path),
		MIMEType: GetMIMEType(path),
		Size:     info.Size(),
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return raw, nil
	}
	raw.Data, err = os.ReadFile(path)
	if err != nil {
		return domain.RawFile{}, err
	}
	return raw, nil
}
