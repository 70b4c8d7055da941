package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"
	"unicode"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/meterscan/internal/clock"
	"github.com/smallbiznis/meterscan/internal/config"
	"github.com/smallbiznis/meterscan/internal/providers/storage"
	"github.com/smallbiznis/meterscan/internal/providers/vision"
	readingdomain "github.com/smallbiznis/meterscan/internal/reading/domain"
	"github.com/smallbiznis/meterscan/internal/reading/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fixture struct {
	svc       readingdomain.Service
	db        *gorm.DB
	clock     *clock.FakeClock
	imageDir  string
	extractor *countingExtractor
}

type countingExtractor struct {
	inner vision.Extractor
	calls atomic.Int32
}

func (c *countingExtractor) Name() string { return c.inner.Name() }

func (c *countingExtractor) Extract(ctx context.Context, req vision.Request) (vision.Result, error) {
	c.calls.Add(1)
	return c.inner.Extract(ctx, req)
}

// blockingExtractor waits until the caller gives up.
type blockingExtractor struct {
	started chan struct{}
}

func (b *blockingExtractor) Name() string { return "blocking" }

func (b *blockingExtractor) Extract(ctx context.Context, req vision.Request) (vision.Result, error) {
	close(b.started)
	<-ctx.Done()
	return vision.Result{}, ctx.Err()
}

// barrierExtractor holds every caller until all parties have extracted, so
// they all pass the period precheck before any of them writes.
type barrierExtractor struct {
	text    string
	parties sync.WaitGroup
}

func newBarrierExtractor(text string, parties int) *barrierExtractor {
	b := &barrierExtractor{text: text}
	b.parties.Add(parties)
	return b
}

func (b *barrierExtractor) Name() string { return "barrier" }

func (b *barrierExtractor) Extract(ctx context.Context, req vision.Request) (vision.Result, error) {
	b.parties.Done()
	done := make(chan struct{})
	go func() {
		b.parties.Wait()
		close(done)
	}()
	select {
	case <-done:
		return vision.Result{Text: b.text, Model: "barrier"}, nil
	case <-ctx.Done():
		return vision.Result{}, ctx.Err()
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = conn.Exec("PRAGMA busy_timeout = 5000").Error
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&readingdomain.Reading{}))
	return conn
}

func newFixture(t *testing.T, extractor vision.Extractor, timezone string) *fixture {
	t.Helper()
	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	dir := t.TempDir()
	store, err := storage.NewLocal(dir, "http://images.test")
	require.NoError(t, err)

	counting := &countingExtractor{inner: extractor}
	fake := clock.NewFakeClock(time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC))

	cfg := config.Config{
		Billing: config.BillingConfig{Timezone: timezone},
		Images:  config.ImageConfig{MaxBytes: 1 << 20},
	}
	svc, err := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repository.Provide(),
		Extractor: counting,
		Storage:   store,
		Clock:     fake,
		Config:    cfg,
	})
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, clock: fake, imageDir: dir, extractor: counting}
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func storedImages(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	count := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), ".") {
			count++
		}
	}
	return count
}

func floatPtr(v float64) *float64 { return &v }

func ingest(t *testing.T, f *fixture, customer, kind string) (*readingdomain.Response, error) {
	t.Helper()
	return f.svc.Ingest(context.Background(), readingdomain.IngestRequest{
		Image:        pngImage(t),
		MeterKind:    kind,
		CustomerCode: customer,
	})
}

func TestIngestCreatesPendingReading(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "00821.07"}, "UTC")

	resp, err := ingest(t, f, "CUST-1", "water")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 821.07, resp.ExtractedValue)
	assert.Equal(t, readingdomain.MeterKindWater, resp.MeterKind)
	assert.Equal(t, readingdomain.Period("2024-03"), resp.Period)
	assert.Equal(t, readingdomain.StatePending, resp.State)
	assert.NotEmpty(t, resp.ImageRef)
	assert.Equal(t, "http://images.test/"+resp.ImageRef, resp.ImageURL)
	assert.Equal(t, 1, storedImages(t, f.imageDir))

	var stored readingdomain.Reading
	require.NoError(t, f.db.Where("customer_code = ?", "CUST-1").Take(&stored).Error)
	assert.Equal(t, "00821.07", stored.RawExtraction)
	assert.Equal(t, "static", stored.Metadata["extractor"])
	assert.Equal(t, "image/png", stored.Metadata["mime_type"])
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "12"}, "UTC")
	img := pngImage(t)

	cases := []struct {
		name string
		req  readingdomain.IngestRequest
		want error
	}{
		{"bad kind", readingdomain.IngestRequest{Image: img, MeterKind: "ELECTRIC", CustomerCode: "C"}, readingdomain.ErrInvalidMeterKind},
		{"empty customer", readingdomain.IngestRequest{Image: img, MeterKind: "GAS", CustomerCode: "  "}, readingdomain.ErrInvalidCustomerCode},
		{"long customer", readingdomain.IngestRequest{Image: img, MeterKind: "GAS", CustomerCode: strings.Repeat("x", 65)}, readingdomain.ErrInvalidCustomerCode},
		{"empty image", readingdomain.IngestRequest{MeterKind: "GAS", CustomerCode: "C"}, readingdomain.ErrInvalidImage},
		{"not an image", readingdomain.IngestRequest{Image: []byte("hello world"), MeterKind: "GAS", CustomerCode: "C"}, readingdomain.ErrInvalidImage},
		{"too large", readingdomain.IngestRequest{Image: append(img, make([]byte, 1<<20)...), MeterKind: "GAS", CustomerCode: "C"}, readingdomain.ErrInvalidImage},
		{"declared type mismatch", readingdomain.IngestRequest{Image: img, MimeType: "image/jpeg", MeterKind: "GAS", CustomerCode: "C"}, readingdomain.ErrInvalidImage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Ingest(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, readingdomain.KindInvalidInput, readingdomain.KindOf(err))
		})
	}
	assert.Zero(t, f.extractor.calls.Load())
}

func TestIngestAcceptsMatchingOrGenericDeclaredType(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "12"}, "UTC")
	img := pngImage(t)

	for i, declared := range []string{"image/png", "IMAGE/PNG; name=meter.png", "application/octet-stream", ""} {
		_, err := f.svc.Ingest(context.Background(), readingdomain.IngestRequest{
			Image:        img,
			MimeType:     declared,
			MeterKind:    "GAS",
			CustomerCode: fmt.Sprintf("CUST-%d", i),
		})
		assert.NoError(t, err, "declared %q", declared)
	}
}

func TestNormalizeDeclaredType(t *testing.T) {
	assert.Equal(t, "image/jpeg", normalizeDeclaredType(" image/JPG "))
	assert.Equal(t, "image/png", normalizeDeclaredType("image/png; charset=binary"))
	assert.Empty(t, normalizeDeclaredType("application/octet-stream"))
	assert.True(t, isHEIF("image/heic"))
	assert.False(t, isHEIF("image/png"))
}

func TestIngestDuplicatePeriodSkipsExtraction(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "100"}, "UTC")

	first, err := ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)

	f.clock.Advance(10 * 24 * time.Hour)
	_, err = ingest(t, f, "CUST-1", "GAS")
	require.ErrorIs(t, err, readingdomain.ErrDuplicatePeriod)
	assert.Equal(t, int32(1), f.extractor.calls.Load())

	// The first reading is untouched.
	got, err := f.svc.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ExtractedValue, got.ExtractedValue)
	assert.Equal(t, readingdomain.StatePending, got.State)
}

func TestIngestDuplicateAfterConfirmation(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "100"}, "UTC")

	first, err := ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), readingdomain.ConfirmRequest{ReadingID: first.ID, ConfirmedValue: floatPtr(100)})
	require.NoError(t, err)

	_, err = ingest(t, f, "CUST-1", "GAS")
	assert.ErrorIs(t, err, readingdomain.ErrDuplicatePeriod)
}

func TestIngestKindsAndPeriodsAreIndependent(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "5"}, "UTC")

	_, err := ingest(t, f, "CUST-1", "WATER")
	require.NoError(t, err)
	_, err = ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)
	_, err = ingest(t, f, "CUST-2", "WATER")
	require.NoError(t, err)

	f.clock.Set(time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	next, err := ingest(t, f, "CUST-1", "WATER")
	require.NoError(t, err)
	assert.Equal(t, readingdomain.Period("2024-04"), next.Period)
}

func TestIngestPeriodUsesBillingTimezone(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "5"}, "Asia/Jakarta")
	f.clock.Set(time.Date(2024, time.March, 31, 20, 0, 0, 0, time.UTC))

	resp, err := ingest(t, f, "CUST-1", "WATER")
	require.NoError(t, err)
	assert.Equal(t, readingdomain.Period("2024-04"), resp.Period)
}

func TestIngestExtractionFailureCreatesNothing(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Err: errors.New("upstream 500")}, "UTC")

	_, err := ingest(t, f, "CUST-1", "WATER")
	require.ErrorIs(t, err, readingdomain.ErrExtractionFailed)
	assert.NotErrorIs(t, err, readingdomain.ErrUnreadableValue)

	list, err := f.svc.ListForCustomer(context.Background(), readingdomain.ListRequest{CustomerCode: "CUST-1"})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, storedImages(t, f.imageDir))
}

func TestIngestUnreadableValue(t *testing.T) {
	for _, answer := range []string{"I cannot read this meter", "", "12 or 13", "-4"} {
		t.Run(answer, func(t *testing.T) {
			f := newFixture(t, &vision.StaticExtractor{Text: answer}, "UTC")

			_, err := ingest(t, f, "CUST-1", "WATER")
			require.ErrorIs(t, err, readingdomain.ErrUnreadableValue)
			assert.ErrorIs(t, err, readingdomain.ErrExtractionFailed)

			var count int64
			require.NoError(t, f.db.Model(&readingdomain.Reading{}).Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}

func TestIngestCanceledDuringExtraction(t *testing.T) {
	blocking := &blockingExtractor{started: make(chan struct{})}
	f := newFixture(t, blocking, "UTC")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-blocking.started
		cancel()
	}()

	_, err := f.svc.Ingest(ctx, readingdomain.IngestRequest{Image: pngImage(t), MeterKind: "GAS", CustomerCode: "CUST-1"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, readingdomain.KindCanceled, readingdomain.KindOf(err))

	var count int64
	require.NoError(t, f.db.Model(&readingdomain.Reading{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Zero(t, storedImages(t, f.imageDir))
}

func TestIngestConcurrentSubmissionsCreateOneReading(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "4521"}, "UTC")
	img := pngImage(t)

	const workers = 8
	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		duplicates atomic.Int32
		others     = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Ingest(context.Background(), readingdomain.IngestRequest{
				Image:        img,
				MeterKind:    "WATER",
				CustomerCode: "CUST-RACE",
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, readingdomain.ErrDuplicatePeriod):
				duplicates.Add(1)
			default:
				others <- err
			}
		}()
	}
	wg.Wait()
	close(others)

	for err := range others {
		t.Errorf("unexpected error: %v", err)
	}
	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), duplicates.Load())
	assert.Equal(t, 1, storedImages(t, f.imageDir))
}

func TestIngestInsertRaceHasOneWinner(t *testing.T) {
	f := newFixture(t, newBarrierExtractor("4521", 2), "UTC")
	img := pngImage(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Ingest(ctx, readingdomain.IngestRequest{
				Image:        img,
				MeterKind:    "GAS",
				CustomerCode: "CUST-INSERT-RACE",
			})
		}(i)
	}
	wg.Wait()

	var successes, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, readingdomain.ErrDuplicatePeriod):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, duplicates)
	assert.Equal(t, int32(2), f.extractor.calls.Load())
	assert.Equal(t, 1, storedImages(t, f.imageDir))

	var count int64
	require.NoError(t, f.db.Model(&readingdomain.Reading{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConfirmAcceptsExtractedValue(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "250.5"}, "UTC")
	created, err := ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	confirmed, err := f.svc.Confirm(context.Background(), readingdomain.ConfirmRequest{
		ReadingID:      created.ID,
		ConfirmedValue: floatPtr(250.5),
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, confirmed.ID)
	assert.Equal(t, readingdomain.StateConfirmed, confirmed.State)
	assert.Equal(t, 250.5, confirmed.ExtractedValue)
	assert.False(t, confirmed.Corrected)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.True(t, confirmed.ConfirmedAt.Equal(f.clock.Now()))
}

func TestConfirmOverwritesWithCorrection(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "250.5"}, "UTC")
	created, err := ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(context.Background(), readingdomain.ConfirmRequest{
		ReadingID:      created.ID,
		ConfirmedValue: floatPtr(260),
	})
	require.NoError(t, err)
	assert.Equal(t, 260.0, confirmed.ExtractedValue)
	assert.True(t, confirmed.Corrected)
}

func TestConfirmTwiceIsRejected(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "10"}, "UTC")
	created, err := ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), readingdomain.ConfirmRequest{ReadingID: created.ID, ConfirmedValue: floatPtr(11)})
	require.NoError(t, err)

	for _, value := range []float64{11, 12} {
		_, err = f.svc.Confirm(context.Background(), readingdomain.ConfirmRequest{ReadingID: created.ID, ConfirmedValue: floatPtr(value)})
		assert.ErrorIs(t, err, readingdomain.ErrAlreadyConfirmed)
	}

	got, err := f.svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 11.0, got.ExtractedValue)
}

func TestConfirmValidation(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "10"}, "UTC")
	created, err := ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)

	cases := []struct {
		name string
		req  readingdomain.ConfirmRequest
		want error
	}{
		{"missing value", readingdomain.ConfirmRequest{ReadingID: created.ID}, readingdomain.ErrInvalidConfirmedValue},
		{"negative value", readingdomain.ConfirmRequest{ReadingID: created.ID, ConfirmedValue: floatPtr(-1)}, readingdomain.ErrInvalidConfirmedValue},
		{"bad id", readingdomain.ConfirmRequest{ReadingID: "abc", ConfirmedValue: floatPtr(1)}, readingdomain.ErrInvalidID},
		{"unknown id", readingdomain.ConfirmRequest{ReadingID: "12345", ConfirmedValue: floatPtr(1)}, readingdomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Confirm(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	got, err := f.svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, readingdomain.StatePending, got.State)
}

func TestConfirmTouchesOnlyTargetReading(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "10"}, "UTC")
	target, err := ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)
	other, err := ingest(t, f, "CUST-1", "WATER")
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), readingdomain.ConfirmRequest{ReadingID: target.ID, ConfirmedValue: floatPtr(99)})
	require.NoError(t, err)

	got, err := f.svc.GetByID(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, readingdomain.StatePending, got.State)
	assert.Equal(t, 10.0, got.ExtractedValue)
}

func TestConfirmConcurrentExactlyOneWins(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "10"}, "UTC")
	created, err := ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)

	const workers = 6
	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		rejected  atomic.Int32
		winnerVal atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(value float64) {
			defer wg.Done()
			resp, err := f.svc.Confirm(context.Background(), readingdomain.ConfirmRequest{
				ReadingID:      created.ID,
				ConfirmedValue: floatPtr(value),
			})
			switch {
			case err == nil:
				winners.Add(1)
				winnerVal.Store(int64(resp.ExtractedValue))
			case errors.Is(err, readingdomain.ErrAlreadyConfirmed):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(float64(20 + i))
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(workers-1), rejected.Load())

	got, err := f.svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(winnerVal.Load()), got.ExtractedValue)
	assert.Equal(t, readingdomain.StateConfirmed, got.State)
}

func TestListForCustomer(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "7"}, "UTC")

	for _, month := range []time.Month{time.January, time.February, time.March} {
		f.clock.Set(time.Date(2024, month, 10, 0, 0, 0, 0, time.UTC))
		_, err := ingest(t, f, "CUST-1", "WATER")
		require.NoError(t, err)
	}
	_, err := ingest(t, f, "CUST-1", "GAS")
	require.NoError(t, err)
	_, err = ingest(t, f, "CUST-2", "GAS")
	require.NoError(t, err)

	all, err := f.svc.ListForCustomer(context.Background(), readingdomain.ListRequest{CustomerCode: "CUST-1"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].SubmittedAt.After(all[i-1].SubmittedAt), "readings must be newest first")
	}
	for _, item := range all {
		assert.Equal(t, "CUST-1", item.CustomerCode)
	}

	water, err := f.svc.ListForCustomer(context.Background(), readingdomain.ListRequest{CustomerCode: "CUST-1", MeterKind: "water"})
	require.NoError(t, err)
	assert.Len(t, water, 3)
	assert.Equal(t, readingdomain.Period("2024-03"), water[0].Period)

	none, err := f.svc.ListForCustomer(context.Background(), readingdomain.ListRequest{CustomerCode: "NOBODY"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = f.svc.ListForCustomer(context.Background(), readingdomain.ListRequest{CustomerCode: ""})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidCustomerCode)
	_, err = f.svc.ListForCustomer(context.Background(), readingdomain.ListRequest{CustomerCode: "CUST-1", MeterKind: "STEAM"})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidMeterKind)
}

func TestGetByID(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "7"}, "UTC")
	created, err := ingest(t, f, "CUST-1", "WATER")
	require.NoError(t, err)

	got, err := f.svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ImageRef, got.ImageRef)

	_, err = f.svc.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, readingdomain.ErrInvalidID)
	_, err = f.svc.GetByID(context.Background(), "42")
	assert.ErrorIs(t, err, readingdomain.ErrNotFound)
}

func TestStoreFailureIsReported(t *testing.T) {
	f := newFixture(t, &vision.StaticExtractor{Text: "7"}, "UTC")
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = ingest(t, f, "CUST-1", "WATER")
	require.ErrorIs(t, err, readingdomain.ErrStoreUnavailable)
	assert.Equal(t, readingdomain.KindStoreUnavailable, readingdomain.KindOf(err))
	assert.Zero(t, f.extractor.calls.Load())
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	_, err := New(Params{
		Log:    zap.NewNop(),
		Config: config.Config{Billing: config.BillingConfig{Timezone: "Mars/Olympus"}},
	})
	assert.Error(t, err)
}
