package app

import (
	"context"
	"time"

	"assessment-service/internal/domain"
	"assessment-service/internal/monitoring"
	"assessment-service/internal/scoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultGradingCost is the points price of a manual essay grading request.
const DefaultGradingCost int64 = 100

type Option func(*options)

type options struct {
	engine  *scoring.Engine
	cost    int64
	log     *zap.Logger
	metrics *monitoring.Metrics
	events  EventPublisher
	now     func() time.Time
	newID   func() string
}

func newOptions(opts []Option) options {
	o := options{
		engine: scoring.NewEngine(),
		cost:   DefaultGradingCost,
		log:    zap.NewNop(),
		events: noopPublisher{},
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithEngine(engine *scoring.Engine) Option {
	return func(o *options) { o.engine = engine }
}

// WithGradingCost sets the points charged per grading request.
func WithGradingCost(cost int64) Option {
	return func(o *options) {
		if cost > 0 {
			o.cost = cost
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithEvents(p EventPublisher) Option {
	return func(o *options) {
		if p != nil {
			o.events = p
		}
	}
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.Event) error { return nil }

// publish is best-effort: the transition has already been persisted.
func (o options) publish(ctx context.Context, typ string, a domain.Attempt) {
	if err := o.events.Publish(ctx, domain.NewEvent(typ, a, o.now())); err != nil {
		o.log.Warn("publish event failed", zap.String("event", typ), zap.String("attempt_id", a.ID), zap.Error(err))
	}
}
