package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (*Response, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*Response, error)
	ListForCustomer(ctx context.Context, req ListRequest) ([]Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
}

type IngestRequest struct {
	Image        []byte
	MimeType     string
	MeterKind    string
	CustomerCode string
}

type ConfirmRequest struct {
	ReadingID string
	// ConfirmedValue is nil when the caller sent no value.
	ConfirmedValue *float64
}

type ListRequest struct {
	CustomerCode string
	MeterKind    string
}

type Response struct {
	ID             string     `json:"readingId"`
	CustomerCode   string     `json:"customerCode"`
	MeterKind      MeterKind  `json:"meterKind"`
	Period         Period     `json:"period"`
	SubmittedAt    time.Time  `json:"submittedAt"`
	ExtractedValue float64    `json:"extractedValue"`
	ImageRef       string     `json:"imageRef"`
	ImageURL       string     `json:"imageUrl,omitempty"`
	State          State      `json:"state"`
	Corrected      bool       `json:"corrected"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty"`
}

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
