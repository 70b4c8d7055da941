// Package domain holds the meter reading model, its lifecycle rules and the
// contracts implemented by the store and the reading service.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// MeterKind identifies which utility meter a photo shows.
type MeterKind string

const (
	MeterKindWater MeterKind = "WATER"
	MeterKindGas   MeterKind = "GAS"
)

// ParseMeterKind accepts WATER or GAS in any letter case.
func ParseMeterKind(value string) (MeterKind, error) {
	switch kind := MeterKind(strings.ToUpper(strings.TrimSpace(value))); kind {
	case MeterKindWater, MeterKindGas:
		return kind, nil
	default:
		return "", ErrInvalidMeterKind
	}
}

// State is the lifecycle state of a reading.
type State string

const (
	StatePending   State = "PENDING"
	StateConfirmed State = "CONFIRMED"
)

// Reading is one extracted meter value for a customer, meter kind and
// billing period. At most one exists per (CustomerCode, MeterKind, Period).
type Reading struct {
	ID             snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	CustomerCode   string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_meter_readings_customer_kind_period,priority:1;index:idx_meter_readings_customer_submitted,priority:1"`
	MeterKind      MeterKind    `gorm:"type:varchar(16);not null;uniqueIndex:ux_meter_readings_customer_kind_period,priority:2"`
	Period         Period       `gorm:"type:varchar(7);not null;uniqueIndex:ux_meter_readings_customer_kind_period,priority:3"`
	SubmittedAt    time.Time    `gorm:"not null;index:idx_meter_readings_customer_submitted,priority:2"`
	ExtractedValue float64      `gorm:"not null"`
	RawExtraction  string       `gorm:"type:text;not null"`
	ImageRef       string       `gorm:"type:varchar(255);not null"`
	State          State        `gorm:"type:varchar(16);not null"`
	Corrected      bool         `gorm:"not null"`
	ConfirmedAt    *time.Time
	Metadata       datatypes.JSONMap
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Reading) TableName() string { return "meter_readings" }

// IsConfirmed reports whether the reading reached its terminal state.
func (r *Reading) IsConfirmed() bool {
	return r != nil && r.State == StateConfirmed
}
