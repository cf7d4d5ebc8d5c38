package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "go-best-shot/internal/errors"
)

const (
	defaultMaxPreviewBytes = 32 * 1024 * 1024
	maxAttempts            = 3
)

// HTTPAssetSource fetches preview bytes from <baseURL>/<assetID>
type HTTPAssetSource struct {
	client     *http.Client
	baseURL    string
	maxBytes   int64
	retryDelay time.Duration
	headers    http.Header
}

// HTTPOption configures an HTTPAssetSource
type HTTPOption func(*HTTPAssetSource)

// WithMaxPreviewBytes bounds how much of a response body is read
func WithMaxPreviewBytes(n int64) HTTPOption {
	return func(s *HTTPAssetSource) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithRetryDelay sets the linear backoff unit between attempts
func WithRetryDelay(d time.Duration) HTTPOption {
	return func(s *HTTPAssetSource) {
		if d >= 0 {
			s.retryDelay = d
		}
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPAssetSource) {
		s.headers.Set(key, value)
	}
}

// WithHTTPClient replaces the tuned default client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPAssetSource) {
		if c != nil {
			s.client = c
		}
	}
}

// NewHTTPAssetSource creates an HTTP asset source
func NewHTTPAssetSource(baseURL string, opts ...HTTPOption) *HTTPAssetSource {
	s := &HTTPAssetSource{
		client:     NewHTTPClient(30 * time.Second),
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxBytes:   defaultMaxPreviewBytes,
		retryDelay: time.Second,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHTTPClient returns a client tuned for single image downloads
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,

		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects (limit: 3)")
			}
			return nil
		},
	}
}

// FetchPreview implements resolver.AssetSource
func (s *HTTPAssetSource) FetchPreview(ctx context.Context, assetID string) ([]byte, error) {
	return s.get(ctx, s.baseURL+"/"+url.PathEscape(assetID))
}

// get retries network errors and 5xx responses up to three times. 4xx
// responses are final; 404 is reported as unavailable input.
func (s *HTTPAssetSource) get(ctx context.Context, target string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, retry, err := s.attempt(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}

		// Sleep before next retry (not on last attempt)
		if attempt < maxAttempts-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * s.retryDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("%w: failed to fetch %s: %v", apperrors.ErrUnavailableInput, target, lastErr)
}

func (s *HTTPAssetSource) attempt(ctx context.Context, target string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Best-Shot/1.0")
	for k, v := range s.headers {
		req.Header[k] = v
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("not found: status code %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return readBounded(resp.Body, s.maxBytes)
}

func readBounded(r io.Reader, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, false, fmt.Errorf("preview exceeds %d bytes", limit)
	}
	if len(body) == 0 {
		return nil, false, fmt.Errorf("empty preview body")
	}
	return body, false, nil
}
