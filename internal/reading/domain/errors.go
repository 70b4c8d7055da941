package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidMeterKind      = errors.New("invalid_meter_kind")
	ErrInvalidCustomerCode   = errors.New("invalid_customer_code")
	ErrInvalidImage          = errors.New("invalid_image")
	ErrInvalidConfirmedValue = errors.New("invalid_confirmed_value")
	ErrInvalidID             = errors.New("invalid_id")

	ErrDuplicatePeriod  = errors.New("duplicate_period")
	ErrNotFound         = errors.New("not_found")
	ErrAlreadyConfirmed = errors.New("already_confirmed")

	ErrExtractionFailed = errors.New("extraction_failed")
	// ErrUnreadableValue means the extractor answered but the answer is not a number.
	ErrUnreadableValue = fmt.Errorf("%w: unreadable_value", ErrExtractionFailed)

	ErrStoreUnavailable = errors.New("store_unavailable")
)

// Kind names the failure class of an error returned by the reading service.
type Kind string

const (
	KindNone             Kind = ""
	KindInvalidInput     Kind = "invalid_input"
	KindDuplicatePeriod  Kind = "duplicate_period"
	KindExtractionFailed Kind = "extraction_failed"
	KindNotFound         Kind = "not_found"
	KindAlreadyConfirmed Kind = "already_confirmed"
	KindStoreUnavailable Kind = "store_unavailable"
	KindCanceled         Kind = "canceled"
	KindInternal         Kind = "internal"
)

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case IsInvalidInput(err):
		return KindInvalidInput
	case errors.Is(err, ErrDuplicatePeriod):
		return KindDuplicatePeriod
	case errors.Is(err, ErrExtractionFailed):
		return KindExtractionFailed
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyConfirmed):
		return KindAlreadyConfirmed
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// IsInvalidInput reports whether err was caused by bad caller input.
func IsInvalidInput(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidMeterKind),
		errors.Is(err, ErrInvalidCustomerCode),
		errors.Is(err, ErrInvalidImage),
		errors.Is(err, ErrInvalidConfirmedValue),
		errors.Is(err, ErrInvalidID):
		return true
	default:
		return false
	}
}
