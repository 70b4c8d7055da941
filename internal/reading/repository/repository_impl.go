package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	readingdomain "github.com/smallbiznis/meterscan/internal/reading/domain"
	"github.com/smallbiznis/meterscan/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() readingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, m *readingdomain.Reading) error {
	if m == nil {
		return errors.New("missing_reading")
	}
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "customer_code"},
				{Name: "meter_kind"},
				{Name: "period"},
			},
			DoNothing: true,
		}).
		Create(m)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return readingdomain.ErrDuplicatePeriod
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return readingdomain.ErrDuplicatePeriod
	}
	return nil
}

func (r *repo) FindByPeriod(ctx context.Context, conn *gorm.DB, customerCode string, kind readingdomain.MeterKind, period readingdomain.Period) (*readingdomain.Reading, error) {
	var reading readingdomain.Reading
	err := conn.WithContext(ctx).
		Where("customer_code = ? AND meter_kind = ? AND period = ?", customerCode, kind, period).
		Take(&reading).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reading, nil
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*readingdomain.Reading, error) {
	var reading readingdomain.Reading
	err := conn.WithContext(ctx).
		Where("id = ?", id).
		Take(&reading).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reading, nil
}

func (r *repo) Confirm(ctx context.Context, conn *gorm.DB, id snowflake.ID, value float64, corrected bool, at time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE meter_readings
		 SET extracted_value = ?, state = ?, corrected = ?, confirmed_at = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		value,
		readingdomain.StateConfirmed,
		corrected,
		at,
		at,
		id,
		readingdomain.StatePending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListByCustomer(ctx context.Context, conn *gorm.DB, filter readingdomain.ListFilter) ([]readingdomain.Reading, error) {
	stmt := conn.WithContext(ctx).Where("customer_code = ?", filter.CustomerCode)
	if filter.MeterKind != "" {
		stmt = stmt.Where("meter_kind = ?", filter.MeterKind)
	}

	readings := make([]readingdomain.Reading, 0)
	err := stmt.
		Order("submitted_at DESC").
		Order("id DESC").
		Find(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}
