package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gabriel-vasile/mimetype"
	"github.com/smallbiznis/meterscan/internal/clock"
	"github.com/smallbiznis/meterscan/internal/config"
	"github.com/smallbiznis/meterscan/internal/observability/logger"
	"github.com/smallbiznis/meterscan/internal/observability/metrics"
	"github.com/smallbiznis/meterscan/internal/observability/tracing"
	"github.com/smallbiznis/meterscan/internal/providers/storage"
	"github.com/smallbiznis/meterscan/internal/providers/vision"
	readingdomain "github.com/smallbiznis/meterscan/internal/reading/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxCustomerCodeLength = 64

var acceptedImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/heic",
	"image/heif",
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       readingdomain.Repository
	Extractor  vision.Extractor
	Storage    storage.Provider
	Clock      clock.Clock
	Config     config.Config
	Metrics    *metrics.Metrics           `optional:"true"`
	Extraction *metrics.ExtractionMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       readingdomain.Repository
	extractor  vision.Extractor
	storage    storage.Provider
	clock      clock.Clock
	location   *time.Location
	maxImage   int64
	metrics    *metrics.Metrics
	extraction *metrics.ExtractionMetrics
}

func New(p Params) (readingdomain.Service, error) {
	location, err := time.LoadLocation(strings.TrimSpace(p.Config.Billing.Timezone))
	if err != nil {
		return nil, fmt.Errorf("billing timezone %q: %w", p.Config.Billing.Timezone, err)
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("reading.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		extractor:  p.Extractor,
		storage:    p.Storage,
		clock:      clk,
		location:   location,
		maxImage:   p.Config.Images.MaxBytes,
		metrics:    p.Metrics,
		extraction: p.Extraction,
	}, nil
}

func (s *Service) Ingest(ctx context.Context, req readingdomain.IngestRequest) (_ *readingdomain.Response, err error) {
	kind, err := readingdomain.ParseMeterKind(req.MeterKind)
	if err != nil {
		return nil, err
	}
	customerCode, err := normalizeCustomerCode(req.CustomerCode)
	if err != nil {
		return nil, err
	}
	mimeType, err := s.detectImageType(req.Image, req.MimeType)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "reading.ingest", attribute.String("meter.kind", string(kind)))
	defer func() { tracing.EndSpan(span, err) }()

	submittedAt := s.clock.Now()
	period := readingdomain.PeriodOf(submittedAt, s.location)
	log := logger.WithContext(ctx, s.log).With(
		zap.String("customer_code", customerCode),
		zap.String("meter_kind", string(kind)),
		zap.String("period", period.String()),
	)

	// Cheap rejection before paying for extraction. Insert re-checks.
	existing, err := s.repo.FindByPeriod(ctx, s.db, customerCode, kind, period)
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}
	if existing != nil {
		s.metrics.RecordDuplicatePeriod(ctx, string(kind), "precheck")
		return nil, readingdomain.ErrDuplicatePeriod
	}

	result, value, err := s.extract(ctx, kind, req.Image, mimeType)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.metrics.RecordExtractionFailure(ctx, string(kind), extractionReason(err))
		log.Warn("meter value extraction failed", zap.Error(err))
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imageRef, err := s.storage.Put(ctx, req.Image, mimeType)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: store image: %w", readingdomain.ErrStoreUnavailable, err)
	}

	reading := &readingdomain.Reading{
		ID:             s.genID.Generate(),
		CustomerCode:   customerCode,
		MeterKind:      kind,
		Period:         period,
		SubmittedAt:    submittedAt,
		ExtractedValue: value,
		RawExtraction:  result.Text,
		ImageRef:       imageRef,
		State:          readingdomain.StatePending,
		Metadata: datatypes.JSONMap{
			"extractor": s.extractor.Name(),
			"model":     result.Model,
			"mime_type": mimeType,
		},
		CreatedAt: submittedAt,
		UpdatedAt: submittedAt,
	}

	if err := s.repo.Insert(ctx, s.db, reading); err != nil {
		s.discardImage(ctx, imageRef)
		if errors.Is(err, readingdomain.ErrDuplicatePeriod) {
			s.metrics.RecordDuplicatePeriod(ctx, string(kind), "insert")
			log.Info("concurrent submission lost the period race")
			return nil, err
		}
		return nil, s.storeErr(ctx, err)
	}

	s.metrics.RecordReadingIngested(ctx, string(kind))
	log.Info("reading ingested",
		zap.String("reading_id", reading.ID.String()),
		zap.Float64("extracted_value", value),
	)

	return s.toResponse(reading), nil
}

func (s *Service) Confirm(ctx context.Context, req readingdomain.ConfirmRequest) (_ *readingdomain.Response, err error) {
	if req.ConfirmedValue == nil {
		return nil, readingdomain.ErrInvalidConfirmedValue
	}
	value := *req.ConfirmedValue
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return nil, readingdomain.ErrInvalidConfirmedValue
	}

	readingID, err := readingdomain.ParseID(strings.TrimSpace(req.ReadingID))
	if err != nil {
		return nil, readingdomain.ErrInvalidID
	}

	ctx, span := tracing.StartSpan(ctx, "reading.confirm", attribute.String("reading.id", readingID.String()))
	defer func() { tracing.EndSpan(span, err) }()

	now := s.clock.Now()
	var updated *readingdomain.Reading
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, readingID)
		if err != nil {
			return err
		}
		if current == nil {
			return readingdomain.ErrNotFound
		}
		if current.IsConfirmed() {
			return readingdomain.ErrAlreadyConfirmed
		}

		corrected := current.ExtractedValue != value
		moved, err := s.repo.Confirm(ctx, tx, readingID, value, corrected, now)
		if err != nil {
			return err
		}
		if !moved {
			// Another confirmation committed between the read and the update.
			return readingdomain.ErrAlreadyConfirmed
		}

		updated, err = s.repo.FindByID(ctx, tx, readingID)
		if err != nil {
			return err
		}
		if updated == nil {
			return readingdomain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, s.storeErr(ctx, err)
	}

	s.metrics.RecordReadingConfirmed(ctx, string(updated.MeterKind), updated.Corrected)
	logger.WithReading(logger.WithContext(ctx, s.log), updated.ID.String(), updated.CustomerCode, string(updated.MeterKind)).
		Info("reading confirmed",
			zap.Float64("confirmed_value", updated.ExtractedValue),
			zap.Bool("corrected", updated.Corrected),
		)

	return s.toResponse(updated), nil
}

func (s *Service) ListForCustomer(ctx context.Context, req readingdomain.ListRequest) ([]readingdomain.Response, error) {
	customerCode, err := normalizeCustomerCode(req.CustomerCode)
	if err != nil {
		return nil, err
	}

	filter := readingdomain.ListFilter{CustomerCode: customerCode}
	if strings.TrimSpace(req.MeterKind) != "" {
		kind, err := readingdomain.ParseMeterKind(req.MeterKind)
		if err != nil {
			return nil, err
		}
		filter.MeterKind = kind
	}

	items, err := s.repo.ListByCustomer(ctx, s.db, filter)
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}

	resp := make([]readingdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *s.toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*readingdomain.Response, error) {
	readingID, err := readingdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, readingdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, readingID)
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}
	if item == nil {
		return nil, readingdomain.ErrNotFound
	}
	return s.toResponse(item), nil
}

func (s *Service) extract(ctx context.Context, kind readingdomain.MeterKind, image []byte, mimeType string) (vision.Result, float64, error) {
	ctx, span := tracing.StartSpan(ctx, "reading.extract",
		attribute.String("vision.provider", s.extractor.Name()),
		attribute.String("meter.kind", string(kind)),
	)

	start := time.Now()
	result, err := s.extractor.Extract(ctx, vision.Request{
		Image:     image,
		MimeType:  mimeType,
		MeterKind: string(kind),
	})
	if err != nil {
		s.extraction.Observe(s.extractor.Name(), string(kind), extractionOutcome(ctx, err), time.Since(start))
		tracing.EndSpan(span, err)
		return vision.Result{}, 0, fmt.Errorf("%w: %w", readingdomain.ErrExtractionFailed, err)
	}

	value, err := vision.ParseReading(result.Text)
	if err != nil {
		s.extraction.Observe(s.extractor.Name(), string(kind), metrics.ExtractionOutcomeUnreadable, time.Since(start))
		tracing.EndSpan(span, err)
		return vision.Result{}, 0, fmt.Errorf("%w: %w", readingdomain.ErrUnreadableValue, err)
	}

	s.extraction.Observe(s.extractor.Name(), string(kind), metrics.ExtractionOutcomeSuccess, time.Since(start))
	tracing.EndSpan(span, nil)
	return result, value, nil
}

// detectImageType sniffs the image and checks it against the type the client
// declared, if any. Generic declarations such as application/octet-stream
// carry no information and are ignored.
func (s *Service) detectImageType(image []byte, declared string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: image is empty", readingdomain.ErrInvalidImage)
	}
	if s.maxImage > 0 && int64(len(image)) > s.maxImage {
		return "", fmt.Errorf("%w: image exceeds %d bytes", readingdomain.ErrInvalidImage, s.maxImage)
	}
	detected := mimetype.Detect(image)
	sniffed := ""
	for _, accepted := range acceptedImageTypes {
		if detected.Is(accepted) {
			sniffed = accepted
			break
		}
	}
	if sniffed == "" {
		return "", fmt.Errorf("%w: unsupported content type %s", readingdomain.ErrInvalidImage, detected.String())
	}

	hint := normalizeDeclaredType(declared)
	if hint != "" && !detected.Is(hint) && !(isHEIF(hint) && isHEIF(sniffed)) {
		return "", fmt.Errorf("%w: declared %s but content is %s", readingdomain.ErrInvalidImage, hint, sniffed)
	}
	return sniffed, nil
}

// HEIC is a HEIF profile and clients label the two interchangeably.
func isHEIF(mimeType string) bool {
	return mimeType == "image/heic" || mimeType == "image/heif"
}

func normalizeDeclaredType(declared string) string {
	value, _, _ := strings.Cut(declared, ";")
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", "application/octet-stream", "binary/octet-stream":
		return ""
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	default:
		return value
	}
}

// discardImage removes a stored photo whose reading was never persisted.
func (s *Service) discardImage(ctx context.Context, ref string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), ref); err != nil {
		logger.WithContext(ctx, s.log).Warn("failed to remove orphaned image",
			zap.String("image_ref", ref),
			zap.Error(err),
		)
	}
}

func (s *Service) storeErr(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%w: %w", readingdomain.ErrStoreUnavailable, err)
}

func (s *Service) toResponse(r *readingdomain.Reading) *readingdomain.Response {
	return &readingdomain.Response{
		ID:             r.ID.String(),
		CustomerCode:   r.CustomerCode,
		MeterKind:      r.MeterKind,
		Period:         r.Period,
		SubmittedAt:    r.SubmittedAt,
		ExtractedValue: r.ExtractedValue,
		ImageRef:       r.ImageRef,
		ImageURL:       s.storage.URL(r.ImageRef),
		State:          r.State,
		Corrected:      r.Corrected,
		ConfirmedAt:    r.ConfirmedAt,
	}
}

func normalizeCustomerCode(value string) (string, error) {
	code := strings.TrimSpace(value)
	if code == "" {
		return "", readingdomain.ErrInvalidCustomerCode
	}
	if utf8.RuneCountInString(code) > maxCustomerCodeLength {
		return "", fmt.Errorf("%w: longer than %d characters", readingdomain.ErrInvalidCustomerCode, maxCustomerCodeLength)
	}
	return code, nil
}

func isDomainErr(err error) bool {
	switch readingdomain.KindOf(err) {
	case readingdomain.KindNotFound, readingdomain.KindAlreadyConfirmed, readingdomain.KindInvalidInput:
		return true
	default:
		return false
	}
}

func extractionOutcome(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return metrics.ExtractionOutcomeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.ExtractionOutcomeTimeout
	default:
		return metrics.ExtractionOutcomeError
	}
}

func extractionReason(err error) string {
	switch {
	case errors.Is(err, readingdomain.ErrUnreadableValue):
		return "unreadable_value"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, vision.ErrBlocked):
		return "blocked"
	default:
		return "provider_error"
	}
}
