// Package photoapi is a client for the remote photo-management service. One
// Client serves previews, metadata and duplicate groups to the resolver and
// applies favorites, archiving, deletion and album membership afterwards.
package photoapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	apperrors "go-best-shot/internal/errors"
	"go-best-shot/internal/logger"
	"go-best-shot/internal/metrics"
	"go-best-shot/internal/resolver"
	"go-best-shot/internal/scoring"
)

const breakerName = "photo-api"

var errNotFound = errors.New("photoapi: not found")

// previewPaths are tried in order; a 404 falls through to the next
var previewPaths = []string{
	"/api/assets/%s/thumbnail?size=preview",
	"/api/assets/%s/thumbnail?size=thumbnail",
	"/api/assets/%s/original",
}

// Config configures a Client
type Config struct {
	BaseURL         string
	APIKey          string
	HTTPClient      *http.Client
	RatePerSecond   float64
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	MaxPreviewBytes int64
}

type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker[[]byte]
	maxBytes int64

	albumMu sync.Mutex
	albums  map[string]string // name -> id
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, apperrors.NewValidationError("photo service base URL is required", nil)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxPreviewBytes
	if maxBytes <= 0 {
		maxBytes = 32 * 1024 * 1024
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Missing assets and rejected requests say nothing about service health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound) || errors.Is(err, errClient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Photo service circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		cb:       cb,
		maxBytes: maxBytes,
		albums:   make(map[string]string),
	}, nil
}

var errClient = errors.New("photoapi: request rejected")

// statusError keeps the HTTP status of a failed call
type statusError struct {
	status int
	kind   error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: status code %d", e.kind, e.status)
}

func (e *statusError) Unwrap() error { return e.kind }

// call rate limits, then runs one request through the circuit breaker
func (c *Client) call(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.PhotoAPIRequests.WithLabelValues(op, "rejected").Inc()
		return nil, fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	switch {
	case err == nil:
		metrics.PhotoAPIRequests.WithLabelValues(op, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.PhotoAPIRequests.WithLabelValues(op, "rejected").Inc()
	default:
		metrics.PhotoAPIRequests.WithLabelValues(op, "failure").Inc()
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json, image/*")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &statusError{status: resp.StatusCode, kind: errNotFound}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &statusError{status: resp.StatusCode, kind: errClient}
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("server error: status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", c.maxBytes)
	}
	return data, nil
}

// FetchPreview implements resolver.AssetSource
func (c *Client) FetchPreview(ctx context.Context, assetID string) ([]byte, error) {
	id := url.PathEscape(assetID)
	var lastErr error
	for _, p := range previewPaths {
		body, err := c.call(ctx, "preview", http.MethodGet, fmt.Sprintf(p, id), nil)
		if err == nil && len(body) > 0 {
			return body, nil
		}
		if err == nil {
			err = errors.New("empty preview body")
		}
		lastErr = err
		if !errors.Is(err, errNotFound) {
			break
		}
	}
	return nil, fmt.Errorf("%w: asset %s: %v", apperrors.ErrUnavailableInput, assetID, lastErr)
}

type assetResponse struct {
	ID              string           `json:"id"`
	Tags            *[]tagResponse   `json:"tags"`
	People          *[]personSummary `json:"people"`
	UnassignedFaces []struct{}       `json:"unassignedFaces"`
}

type tagResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type personSummary struct {
	ID    string     `json:"id"`
	Faces []struct{} `json:"faces"`
}

// FetchMetadata implements resolver.MetadataSource. A missing people list
// leaves the face signal absent; a missing tag list leaves the tag signal
// absent.
func (c *Client) FetchMetadata(ctx context.Context, assetID string) (scoring.Metadata, error) {
	body, err := c.call(ctx, "metadata", http.MethodGet, "/api/assets/"+url.PathEscape(assetID), nil)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return scoring.Metadata{}, fmt.Errorf("%w: asset %s", apperrors.ErrMetadataUnavailable, assetID)
		}
		return scoring.Metadata{}, err
	}

	var asset assetResponse
	if err := json.Unmarshal(body, &asset); err != nil {
		return scoring.Metadata{}, fmt.Errorf("decode asset %s: %w", assetID, err)
	}
	return asset.metadata(), nil
}

func (a assetResponse) metadata() scoring.Metadata {
	var meta scoring.Metadata
	if a.People != nil {
		faces := 0
		for _, p := range *a.People {
			if len(p.Faces) > 0 {
				faces += len(p.Faces)
			} else {
				faces++
			}
		}
		faces += len(a.UnassignedFaces)
		meta.FaceCount = &faces
	}
	if a.Tags != nil {
		meta.HasTags = true
		for _, t := range *a.Tags {
			name := t.Name
			if name == "" {
				name = t.Value
			}
			// Hierarchical tags ("Scenes/Portrait") score on their leaf
			if i := strings.LastIndex(name, "/"); i >= 0 {
				name = name[i+1:]
			}
			meta.Tags = append(meta.Tags, name)
		}
	}
	return meta
}

type duplicateResponse struct {
	DuplicateID string `json:"duplicateId"`
	Assets      []struct {
		ID string `json:"id"`
	} `json:"assets"`
}

// ListGroups implements resolver.GroupSource
func (c *Client) ListGroups(ctx context.Context) ([]resolver.DuplicateGroup, error) {
	body, err := c.call(ctx, "duplicates", http.MethodGet, "/api/duplicates", nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to list duplicate groups", err)
	}

	var dups []duplicateResponse
	if err := json.Unmarshal(body, &dups); err != nil {
		return nil, apperrors.NewProcessingError("invalid duplicates response", err)
	}

	groups := make([]resolver.DuplicateGroup, 0, len(dups))
	for _, d := range dups {
		g := resolver.DuplicateGroup{ID: d.DuplicateID}
		for _, a := range d.Assets {
			g.AssetIDs = append(g.AssetIDs, a.ID)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

type bulkUpdate struct {
	IDs        []string `json:"ids"`
	IsFavorite *bool    `json:"isFavorite,omitempty"`
	Visibility string   `json:"visibility,omitempty"`
}

// SetFavorite marks or unmarks assets as favorites
func (c *Client) SetFavorite(ctx context.Context, assetIDs []string, favorite bool) error {
	if len(assetIDs) == 0 {
		return nil
	}
	_, err := c.call(ctx, "favorite", http.MethodPut, "/api/assets", bulkUpdate{IDs: assetIDs, IsFavorite: &favorite})
	return err
}

// SetArchived moves assets out of, or back into, the main timeline
func (c *Client) SetArchived(ctx context.Context, assetIDs []string, archived bool) error {
	if len(assetIDs) == 0 {
		return nil
	}
	visibility := "timeline"
	if archived {
		visibility = "archive"
	}
	_, err := c.call(ctx, "archive", http.MethodPut, "/api/assets", bulkUpdate{IDs: assetIDs, Visibility: visibility})
	return err
}

// DeleteAssets moves assets to the service's trash
func (c *Client) DeleteAssets(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	payload := struct {
		IDs   []string `json:"ids"`
		Force bool     `json:"force"`
	}{IDs: assetIDs}
	_, err := c.call(ctx, "delete", http.MethodDelete, "/api/assets", payload)
	return err
}

type album struct {
	ID        string `json:"id"`
	AlbumName string `json:"albumName"`
}

// AddToAlbum adds assets to the named album, creating it on first use
func (c *Client) AddToAlbum(ctx context.Context, albumName string, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	id, err := c.albumID(ctx, albumName)
	if err != nil {
		return err
	}
	payload := struct {
		IDs []string `json:"ids"`
	}{IDs: assetIDs}
	_, err = c.call(ctx, "album_add", http.MethodPut, "/api/albums/"+url.PathEscape(id)+"/assets", payload)
	return err
}

func (c *Client) albumID(ctx context.Context, name string) (string, error) {
	c.albumMu.Lock()
	defer c.albumMu.Unlock()

	if id, ok := c.albums[name]; ok {
		return id, nil
	}

	body, err := c.call(ctx, "album_list", http.MethodGet, "/api/albums", nil)
	if err != nil {
		return "", err
	}
	var albums []album
	if err := json.Unmarshal(body, &albums); err != nil {
		return "", fmt.Errorf("decode albums: %w", err)
	}
	for _, a := range albums {
		c.albums[a.AlbumName] = a.ID
	}
	if id, ok := c.albums[name]; ok {
		return id, nil
	}

	body, err = c.call(ctx, "album_create", http.MethodPost, "/api/albums", struct {
		AlbumName string `json:"albumName"`
	}{AlbumName: name})
	if err != nil {
		return "", err
	}
	var created album
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode created album: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("album %q created without id", name)
	}
	c.albums[name] = created.ID
	logger.WithFields(logrus.Fields{"album": name, "album_id": created.ID}).Info("Created album")
	return created.ID, nil
}
