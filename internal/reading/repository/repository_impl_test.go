package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	readingdomain "github.com/smallbiznis/meterscan/internal/reading/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&readingdomain.Reading{}))
	return db
}

func newReading(id snowflake.ID, customer string, kind readingdomain.MeterKind, period readingdomain.Period, at time.Time) *readingdomain.Reading {
	return &readingdomain.Reading{
		ID:             id,
		CustomerCode:   customer,
		MeterKind:      kind,
		Period:         period,
		SubmittedAt:    at,
		ExtractedValue: 10,
		RawExtraction:  "10",
		ImageRef:       "ref",
		State:          readingdomain.StatePending,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestInsertRejectsSecondReadingForPeriod(t *testing.T) {
	db := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, db, newReading(1, "C1", readingdomain.MeterKindGas, "2024-05", now)))
	err := repo.Insert(ctx, db, newReading(2, "C1", readingdomain.MeterKindGas, "2024-05", now))
	assert.ErrorIs(t, err, readingdomain.ErrDuplicatePeriod)

	require.NoError(t, repo.Insert(ctx, db, newReading(3, "C1", readingdomain.MeterKindWater, "2024-05", now)))

	found, err := repo.FindByPeriod(ctx, db, "C1", readingdomain.MeterKindGas, "2024-05")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, snowflake.ID(1), found.ID)

	missing, err := repo.FindByPeriod(ctx, db, "C1", readingdomain.MeterKindGas, "2024-06")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestConfirmIsConditionalOnPending(t *testing.T) {
	db := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, db, newReading(7, "C1", readingdomain.MeterKindGas, "2024-05", now)))

	moved, err := repo.Confirm(ctx, db, 7, 12.5, true, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repo.Confirm(ctx, db, 7, 99, true, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = repo.Confirm(ctx, db, 8, 1, false, now)
	require.NoError(t, err)
	assert.False(t, moved)

	got, err := repo.FindByID(ctx, db, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, readingdomain.StateConfirmed, got.State)
	assert.Equal(t, 12.5, got.ExtractedValue)
	assert.True(t, got.Corrected)
	require.NotNil(t, got.ConfirmedAt)

	none, err := repo.FindByID(ctx, db, 8)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestListByCustomerOrdersNewestFirst(t *testing.T) {
	db := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	base := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, db, newReading(1, "C1", readingdomain.MeterKindGas, "2024-01", base)))
	require.NoError(t, repo.Insert(ctx, db, newReading(2, "C1", readingdomain.MeterKindGas, "2024-02", base.AddDate(0, 1, 0))))
	require.NoError(t, repo.Insert(ctx, db, newReading(3, "C1", readingdomain.MeterKindWater, "2024-02", base.AddDate(0, 1, 0))))
	require.NoError(t, repo.Insert(ctx, db, newReading(4, "C2", readingdomain.MeterKindGas, "2024-02", base.AddDate(0, 1, 0))))

	items, err := repo.ListByCustomer(ctx, db, readingdomain.ListFilter{CustomerCode: "C1"})
	require.NoError(t, err)
	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []snowflake.ID{3, 2, 1}, ids)

	gas, err := repo.ListByCustomer(ctx, db, readingdomain.ListFilter{CustomerCode: "C1", MeterKind: readingdomain.MeterKindGas})
	require.NoError(t, err)
	assert.Len(t, gas, 2)

	empty, err := repo.ListByCustomer(ctx, db, readingdomain.ListFilter{CustomerCode: "C9"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
