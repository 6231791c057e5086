package upscale

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// decodeDataURI decodes a base64 data URI into bytes and its media type.
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("unsupported data URI")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid data URI payload: %w", err)
	}
	return data, strings.TrimSuffix(header, ";base64"), nil
}
