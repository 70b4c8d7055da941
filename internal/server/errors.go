package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/meterscan/internal/providers/storage"
	readingdomain "github.com/smallbiznis/meterscan/internal/reading/domain"
)

// nginx convention for a client that went away before the response.
const statusClientClosedRequest = 499

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
	ErrPayloadTooLarge    = errors.New("payload_too_large")
)

type readingValidation struct {
	err     error
	field   string
	message string
}

var readingValidations = []readingValidation{
	{readingdomain.ErrInvalidMeterKind, "meterKind", "meterKind must be WATER or GAS"},
	{readingdomain.ErrInvalidCustomerCode, "customerCode", "customerCode is required and at most 64 characters"},
	{readingdomain.ErrInvalidImage, "image", "image must be a non-empty JPEG, PNG, WEBP, HEIC or HEIF photo"},
	{readingdomain.ErrInvalidConfirmedValue, "confirmedValue", "confirmedValue must be a non-negative number"},
	{readingdomain.ErrInvalidID, "readingId", "readingId is not a valid reading identifier"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if v, ok := readingValidationFor(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   v.field,
					Code:    v.err.Error(),
					Message: v.message,
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "payload_too_large",
			Message: "image exceeds the maximum upload size",
		}
	case errors.Is(err, readingdomain.ErrDuplicatePeriod):
		return http.StatusConflict, errorPayload{
			Type:    "duplicate_period",
			Message: "a reading for this meter already exists in the current billing period",
		}
	case errors.Is(err, readingdomain.ErrAlreadyConfirmed):
		return http.StatusConflict, errorPayload{
			Type:    "already_confirmed",
			Message: "reading is already confirmed",
		}
	case errors.Is(err, readingdomain.ErrUnreadableValue):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unreadable_value",
			Message: "no meter value could be read from the image",
		}
	case errors.Is(err, readingdomain.ErrExtractionFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "extraction_failed",
			Message: "meter value extraction failed",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many submissions, retry later",
		}
	case errors.Is(err, readingdomain.ErrStoreUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "timeout",
			Message: "request timed out",
		}
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, errorPayload{
			Type:    "canceled",
			Message: "request canceled",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code logged per request.
// Reading failures log their domain kind as the code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	if kind := readingdomain.KindOf(err); kind != readingdomain.KindInternal && kind != readingdomain.KindNone {
		return payload.Type, string(kind)
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func readingValidationFor(err error) (readingValidation, bool) {
	for _, v := range readingValidations {
		if errors.Is(err, v.err) {
			return v, true
		}
	}
	return readingValidation{}, false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, readingdomain.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrInvalidRef):
		return true
	default:
		return false
	}
}
