package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fpang/etsyflow/internal/remote"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path.
func ValidateAndResolveDirectory(dirPath string) (string, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory not found: %s", dirPath)
		}
		return "", fmt.Errorf("failed to access directory %s: %w", dirPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", dirPath)
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}

	return dirPath, nil
}

// PrintCredentialHalt writes the call-to-action shown when a run stops on a
// missing or rejected API key. It reports whether err was a credential error.
func PrintCredentialHalt(w io.Writer, err error) bool {
	if !errors.Is(err, remote.ErrCredential) {
		return false
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The AI service rejected the API key, so the enhancement pass was stopped.")
	fmt.Fprintln(w, "Assets that were not reached are still ready and will be picked up by the next run.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "To continue:")
	fmt.Fprintln(w, "  1. Create or select a key with billing enabled at https://aistudio.google.com/apikey")
	fmt.Fprintln(w, "  2. Export it as GEMINI_API_KEY, or store it in SSM and set GEMINI_API_KEY_SSM_PARAM")
	fmt.Fprintln(w, "  3. Run the command again")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Details: %v\n", err)
	return true
}
