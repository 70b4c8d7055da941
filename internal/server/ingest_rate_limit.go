package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/meterscan/internal/observability/context"
	"github.com/smallbiznis/meterscan/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	rateLimitReasonCustomerRate = "customer-rate"

	// Room for base64 inflation and multipart framing around the image.
	imageBodyOverhead = 64 << 10
)

type ingestRateLimitKey struct {
	CustomerCode string `json:"customerCode"`
}

// LimitImageBody caps the request body so an oversized upload fails with
// 413 before it is buffered.
func (s *Server) LimitImageBody() gin.HandlerFunc {
	limit := s.cfg.Images.MaxBytes
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limit = limit*4/3 + imageBodyOverhead

	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		customerCode, err := readIngestCustomer(c)
		if err != nil {
			if isBodyTooLarge(err) {
				AbortWithError(c, ErrPayloadTooLarge)
				return
			}
			logger.FromContext(ctx).Warn("ingest rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}
		if customerCode == "" {
			// The handler rejects the request with a field error.
			c.Next()
			return
		}

		ctx = obscontext.WithCustomerCode(ctx, customerCode)
		c.Request = c.Request.WithContext(ctx)
		endpoint := normalizeRateLimitEndpoint(c)

		res, err := s.ingestLimiter.AllowCustomer(ctx, customerCode)
		if err != nil {
			logger.FromContext(ctx).Warn("ingest customer rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			s.denyIngest(c, endpoint, rateLimitReasonCustomerRate, res.RetryAfter)
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func (s *Server) denyIngest(c *gin.Context, endpoint, reason string, retryAfter time.Duration) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("ingest rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, reason)

	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// readIngestCustomer peeks at the submitter without consuming the body the
// handler binds afterwards.
func readIngestCustomer(c *gin.Context) (string, error) {
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return "", err
		}
		return firstValue(form.Value["customerCode"]), nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload ingestRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.CustomerCode), nil
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
