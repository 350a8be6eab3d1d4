// Package observability records seat-allocation metrics through OpenTelemetry.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/seatline/backend/internal/models"
)

const meterName = "github.com/seatline/backend"

// Recorder records registration engine metrics.
// Use NewMetricsRecorder for OTel metrics or NoopMetrics{} when disabled.
type Recorder interface {
	RecordRegistration(ctx context.Context, status models.ParticipantStatus)
	RecordCancellation(ctx context.Context, prior models.ParticipantStatus)
	RecordPromotion(ctx context.Context)
	RecordPromotionConflict(ctx context.Context)
	RecordNotificationFailure(ctx context.Context, kind models.NotificationKind)
}

type otelMetrics struct {
	registrations        metric.Int64Counter
	cancellations        metric.Int64Counter
	promotions           metric.Int64Counter
	promotionConflicts   metric.Int64Counter
	notificationFailures metric.Int64Counter
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(meterName)

	registrations, err := meter.Int64Counter("seatline.participants.registrations",
		metric.WithDescription("Registrations by resulting status"),
	)
	if err != nil {
		return nil, err
	}
	cancellations, err := meter.Int64Counter("seatline.participants.cancellations",
		metric.WithDescription("Cancellations by prior status"),
	)
	if err != nil {
		return nil, err
	}
	promotions, err := meter.Int64Counter("seatline.participants.promotions",
		metric.WithDescription("Waiting participants promoted to confirmed"),
	)
	if err != nil {
		return nil, err
	}
	promotionConflicts, err := meter.Int64Counter("seatline.participants.promotion_conflicts",
		metric.WithDescription("Promotion attempts that lost a race"),
	)
	if err != nil {
		return nil, err
	}
	notificationFailures, err := meter.Int64Counter("seatline.notifications.failures",
		metric.WithDescription("Notices that could not be handed to the gateway"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		registrations:        registrations,
		cancellations:        cancellations,
		promotions:           promotions,
		promotionConflicts:   promotionConflicts,
		notificationFailures: notificationFailures,
	}, nil
}

// NewMetricsRecorder returns a Recorder backed by the global OTel meter
// provider, or a no-op recorder if the instruments cannot be created.
func NewMetricsRecorder(logger *zap.Logger) Recorder {
	m, err := newOtelMetrics()
	if err != nil {
		if logger != nil {
			logger.Warn("metrics initialization failed, using no-op recorder", zap.Error(err))
		}
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordRegistration(ctx context.Context, status models.ParticipantStatus) {
	m.registrations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (m *otelMetrics) RecordCancellation(ctx context.Context, prior models.ParticipantStatus) {
	m.cancellations.Add(ctx, 1, metric.WithAttributes(attribute.String("prior_status", string(prior))))
}

func (m *otelMetrics) RecordPromotion(ctx context.Context) {
	m.promotions.Add(ctx, 1)
}

func (m *otelMetrics) RecordPromotionConflict(ctx context.Context) {
	m.promotionConflicts.Add(ctx, 1)
}

func (m *otelMetrics) RecordNotificationFailure(ctx context.Context, kind models.NotificationKind) {
	m.notificationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordRegistration(context.Context, models.ParticipantStatus) {}
func (NoopMetrics) RecordCancellation(context.Context, models.ParticipantStatus) {}
func (NoopMetrics) RecordPromotion(context.Context) {}
func (NoopMetrics) RecordPromotionConflict(context.Context) {}
func (NoopMetrics) RecordNotificationFailure(context.Context, models.NotificationKind) {}
