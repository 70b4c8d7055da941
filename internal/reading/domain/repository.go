package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows ListByCustomer. An empty MeterKind matches both kinds.
type ListFilter struct {
	CustomerCode string
	MeterKind    MeterKind
}

type Repository interface {
	// Insert fails with ErrDuplicatePeriod when a reading already exists
	// for the reading's (CustomerCode, MeterKind, Period).
	Insert(ctx context.Context, db *gorm.DB, reading *Reading) error
	FindByPeriod(ctx context.Context, db *gorm.DB, customerCode string, kind MeterKind, period Period) (*Reading, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reading, error)
	// Confirm moves a PENDING reading to CONFIRMED and reports whether a row
	// transitioned. It never touches a reading other than id.
	Confirm(ctx context.Context, db *gorm.DB, id snowflake.ID, value float64, corrected bool, at time.Time) (bool, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Reading, error)
}
