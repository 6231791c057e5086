// Package upscale is a super-resolution enhancement backend that talks to a
// REST upscaling endpoint (fal.ai ESRGAN compatible).
package upscale

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/remote"
	"github.com/rs/zerolog/log"
)

// TargetWidth is the Etsy recommended long edge the factor aims for.
const TargetWidth = 2048

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Client calls the upscaler endpoint.
type Client struct {
	URL        string
	Key        string
	HTTPClient *http.Client
	Policy     remote.Policy
}

// New returns a Client with a tuned HTTP transport.
func New(url, key string, policy remote.Policy) *Client {
	return &Client{URL: url, Key: key, HTTPClient: NewHTTPClient(180 * time.Second), Policy: policy}
}

// NewHTTPClient returns an http.Client suited to long-running image calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 15 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   15 * time.Second,
			ResponseHeaderTimeout: 120 * time.Second,
		},
	}
}

// Factor returns 4 when doubling would still fall short of TargetWidth or
// the tier is high, otherwise 2.
func Factor(width int, tier domain.QualityTier) int {
	if tier == domain.TierHigh || width*2 < TargetWidth {
		return 4
	}
	return 2
}

type upscaleRequest struct {
	ImageURL      string `json:"image_url"`
	UpscaleFactor int    `json:"upscale_factor"`
}

// Enhance upscales the image and returns a reference to the result.
// The upscaler takes no prompt, so refinement text is logged and not sent.
func (c *Client) Enhance(ctx context.Context, req domain.EnhanceRequest) (*domain.EnhanceResult, error) {
	if c.Key == "" {
		return nil, remote.Errorf(remote.ErrCredential, "upscale", "upscaler key is not configured")
	}
	if strings.TrimSpace(req.Refinement) != "" {
		log.Warn().
			Str("asset", req.AssetID).
			Str("refinement", truncate(req.Refinement, 80)).
			Msg("Upscaler backend does not accept prompts, refinement not applied")
	}
	factor := Factor(req.Image.Width, req.Tier)
	body, err := json.Marshal(upscaleRequest{ImageURL: req.Image.DataURI(), UpscaleFactor: factor})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	log.Info().
		Str("asset", req.AssetID).
		Int("factor", factor).
		Int("width", req.Image.Width).
		Msg("Starting super-resolution upscale")

	start := time.Now()
	url, err := remote.Do(ctx, c.Policy, "upscale", func(ctx context.Context) (string, error) {
		respBody, err := c.post(ctx, body)
		if err != nil {
			return "", err
		}
		return ExtractImageURL(respBody)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("asset", req.AssetID).
		Str("url", truncate(url, 80)).
		Dur("duration", time.Since(start)).
		Msg("Upscale complete")

	return &domain.EnhanceResult{URL: url}, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Key "+c.Key)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncate(string(respBody), 500)).
			Msg("Upscaler returned error")
		return nil, &remote.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 200)}
	}
	return respBody, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// resultPaths lists where a result URL may appear, in priority order.
var resultPaths = [][]string{
	{"data", "image", "url"},
	{"image", "url"},
	{"data", "images", "0", "url"},
	{"images", "0", "url"},
	{"data", "url"},
	{"url"},
	{"output_url"},
	{"image_url"},
}

// ExtractImageURL finds the result URL in a response body. The first
// non-empty match in resultPaths wins; a bare JSON string is accepted if it
// is an http(s) URL. Anything else is ErrMalformedResponse.
func ExtractImageURL(body []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", remote.Errorf(remote.ErrMalformedResponse, "upscale", "response is not JSON: %v", err)
	}

	if s, ok := doc.(string); ok {
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			return s, nil
		}
	}

	for _, path := range resultPaths {
		if s, ok := lookup(doc, path).(string); ok && s != "" {
			return s, nil
		}
	}

	return "", remote.Errorf(remote.ErrMalformedResponse, "upscale", "unrecognized response shape: %s", truncate(string(body), 200))
}

// lookup walks objects by key and arrays by decimal index.
func lookup(node any, path []string) any {
	for _, key := range path {
		switch v := node.(type) {
		case map[string]any:
			node = v[key]
		case []any:
			var idx int
			if _, err := fmt.Sscanf(key, "%d", &idx); err != nil || idx < 0 || idx >= len(v) {
				return nil
			}
			node = v[idx]
		default:
			return nil
		}
	}
	return node
}

// Fetch downloads a result reference. data: URIs are decoded locally.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeDataURI(url)
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", &remote.StatusError{StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read result: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
