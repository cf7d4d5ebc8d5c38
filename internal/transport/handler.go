package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"go-best-shot/internal/config"
	"go-best-shot/internal/effects"
	apperrors "go-best-shot/internal/errors"
	"go-best-shot/internal/logger"
	"go-best-shot/internal/resolver"
	"go-best-shot/internal/scoring"
	"go-best-shot/internal/service"
	"go-best-shot/pkg/models"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// StatsProvider exposes in-process totals on the health endpoint
type StatsProvider interface {
	GetMetrics() map[string]interface{}
}

// NewHandler creates the HTTP API. stats may be nil.
func NewHandler(svc service.ResolutionService, cfg *config.Config, stats StatsProvider) http.Handler {
	r := gin.New()

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		requestSizeLimiter(cfg.Server.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck(stats))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/score", scoreImage(svc, cfg.Server.RequestTimeout))
	v1.POST("/groups/resolve", resolveGroup(svc, cfg.Server.RequestTimeout))
	v1.POST("/runs", startRun(svc))

	return r
}

// scoreImage scores the raw image in the request body. Optional metadata
// comes from the faces and tags query parameters.
func scoreImage(svc service.ResolutionService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		meta, err := metadataFromQuery(c)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid metadata parameters", err)
			return
		}

		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondError(c, http.StatusRequestEntityTooLarge, "image too large", err)
				return
			}
			respondError(c, http.StatusBadRequest, "failed to read request body", err)
			return
		}

		score, err := svc.ScoreImage(ctx, data, meta)
		if err != nil {
			respondAppError(c, "failed to score image", err)
			return
		}

		resp := toScoreResponse(score)
		resp.AssetID = ""
		resp.Timestamp = time.Now().UTC().Format(time.RFC3339)
		resp.ProcessingTimeSec = time.Since(startTime).Seconds()

		logger.WithFields(logrus.Fields{
			"request_id":         c.GetString(requestIDKey),
			"bytes":              len(data),
			"total":              score.Total,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Image scored")

		c.JSON(http.StatusOK, resp)
	}
}

func resolveGroup(svc service.ResolutionService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		var req models.ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		if req.GroupID == "" {
			req.GroupID = c.GetString(requestIDKey)
		}

		res, err := svc.ResolveGroup(ctx, resolver.DuplicateGroup{ID: req.GroupID, AssetIDs: req.AssetIDs})
		if err != nil {
			respondAppError(c, "failed to resolve group", err)
			return
		}

		resp := models.ResolveResponse{
			GroupID:           res.GroupID,
			Winner:            res.Winner,
			Alternates:        res.Alternates,
			Degraded:          res.Degraded,
			Scores:            make([]models.ScoreResponse, 0, len(res.Scores)),
			Timestamp:         time.Now().UTC().Format(time.RFC3339),
			ProcessingTimeSec: time.Since(startTime).Seconds(),
		}
		for _, s := range res.Scores {
			resp.Scores = append(resp.Scores, toScoreResponse(s))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// startRun runs a full resolution pass synchronously
func startRun(svc service.ResolutionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				respondError(c, http.StatusBadRequest, "invalid request format", err)
				return
			}
		}

		summary, err := svc.Run(c.Request.Context(), service.RunOptions{
			Mode:   effects.Mode(req.Mode),
			DryRun: req.DryRun,
		})
		if err != nil {
			respondAppError(c, "resolution run failed", err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func healthCheck(stats StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":  "available",
			"version": "1.0.0",
			"time":    time.Now().UTC().Format(time.RFC3339),
		}
		if stats != nil {
			body["stats"] = stats.GetMetrics()
		}
		c.JSON(http.StatusOK, body)
	}
}

// metadataFromQuery reads ?faces=N&tags=a,b. It returns nil when neither is
// present so the image is scored without metadata.
func metadataFromQuery(c *gin.Context) (*scoring.Metadata, error) {
	facesParam, hasFaces := c.GetQuery("faces")
	tagsParam, hasTags := c.GetQuery("tags")
	if !hasFaces && !hasTags {
		return nil, nil
	}

	meta := scoring.Metadata{}
	if hasFaces {
		n, err := strconv.Atoi(strings.TrimSpace(facesParam))
		if err != nil || n < 0 {
			return nil, apperrors.NewValidationError("faces must be a non-negative integer", err)
		}
		meta.FaceCount = &n
	}
	if hasTags {
		meta.HasTags = true
		meta.Tags = []string{}
		for _, tag := range strings.Split(tagsParam, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				meta.Tags = append(meta.Tags, tag)
			}
		}
	}
	return &meta, nil
}

func toScoreResponse(s resolver.AssetScore) models.ScoreResponse {
	b := s.Breakdown
	return models.ScoreResponse{
		AssetID: s.AssetID,
		Total:   s.Total,
		Breakdown: models.ScoreBreakdown{
			Sharpness:         b.Sharpness,
			Exposure:          b.Exposure,
			Composition:       b.Composition,
			ExposureComposite: b.ExposureComposite,
			Face:              b.Face,
			Tags:              b.Tags,
			LaplacianVariance: b.LaplacianVariance,
			MetadataMissing:   b.MetadataMissing,
			Reason:            string(b.Reason),
		},
	}
}

// Middleware and helper functions
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	if errors.Is(err, service.ErrRunInProgress) {
		return http.StatusConflict
	}

	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return apperrors.Classify(err).StatusCode
	}
}

// errorType names the error category for clients, or "" when unknown
func errorType(err error) string {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return string(appErr.Type)
	case errors.Is(err, apperrors.ErrUnavailableInput),
		errors.Is(err, apperrors.ErrDecodeFailure),
		errors.Is(err, apperrors.ErrInvalidBuffer),
		errors.Is(err, apperrors.ErrMetadataUnavailable):
		return string(apperrors.Classify(err).Type)
	case errors.Is(err, service.ErrRunInProgress):
		return "conflict"
	default:
		return ""
	}
}

func respondAppError(c *gin.Context, message string, err error) {
	respondError(c, determineStatusCode(err), message, err)
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"request_id":  c.GetString(requestIDKey),
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:     http.StatusText(code),
		Message:   fmt.Sprintf("%s: %v", message, err),
		Type:      errorType(err),
		RequestID: c.GetString(requestIDKey),
	})
}
