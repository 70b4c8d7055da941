package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/meterscan/internal/providers/storage"
	readingdomain "github.com/smallbiznis/meterscan/internal/reading/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("extract: %w", context.Canceled), statusClientClosedRequest},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{storage.ErrInvalidRef, http.StatusNotFound},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{nil, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, "error %v", tc.err)
	}
}

func TestMapErrorUnreadableBeforeExtraction(t *testing.T) {
	status, payload := mapError(fmt.Errorf("gemini: %w", readingdomain.ErrUnreadableValue))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "unreadable_value", payload.Type)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(readingdomain.ErrInvalidMeterKind)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_meter_kind", code)

	typ, code = classifyErrorForLog(readingdomain.ErrDuplicatePeriod)
	assert.Equal(t, "duplicate_period", typ)
	assert.Equal(t, "duplicate_period", code)

	typ, code = classifyErrorForLog(readingdomain.ErrUnreadableValue)
	assert.Equal(t, "unreadable_value", typ)
	assert.Equal(t, "extraction_failed", code)

	typ, code = classifyErrorForLog(ErrRateLimited)
	assert.Equal(t, "rate_limited", typ)
	assert.Equal(t, "rate_limited", code)
}

func TestDecodeImage(t *testing.T) {
	image, mimeType, err := decodeImage("data:image/jpeg;base64,/9j/4A==")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, image)

	image, mimeType, err = decodeImage("/9j/4A")
	require.NoError(t, err)
	assert.Empty(t, mimeType)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, image)

	for _, bad := range []string{"", "   ", "data:image/png,abc", "%%%"} {
		_, _, err := decodeImage(bad)
		assert.ErrorIs(t, err, readingdomain.ErrInvalidImage, "input %q", bad)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 3, retryAfterSeconds(2500*time.Millisecond))
}
