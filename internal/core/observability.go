package core

import (
	"context"
	"time"

	"amari/internal/cache"
	"amari/internal/taxonomy"
)

// Logger is the structured logging surface used by the service. It matches
// *github.com/charmbracelet/log.Logger.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(any, ...any) {}
func (noopLogger) Info(any, ...any)  {}
func (noopLogger) Warn(any, ...any)  {}
func (noopLogger) Error(any, ...any) {}

// MetricsRecorder receives the outcome of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TreeMetrics is implemented by recorders that also track taxonomy rebuilds.
type TreeMetrics interface {
	ObserveTreeBuild(nodes int, err error, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan ends a traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithPolicy sets the implication policy used for substitution and expansion.
func WithPolicy(p taxonomy.Policy) ServiceOption {
	return func(s *Service) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithCache sets the registry that holds derived listings.
func WithCache(reg *cache.Registry) ServiceOption {
	return func(s *Service) {
		if reg != nil {
			s.cache = reg
		}
	}
}

// WithClock overrides the time source used for durations.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// observe wraps fn with a span, a metrics observation, and an error log.
func (s *Service) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := s.now()
	err := fn(ctx)
	s.metrics.Observe(ctx, operation, err == nil, s.now().Sub(start))
	span.End(err)
	if err != nil {
		s.logger.Debug("operation failed", "operation", operation, "err", err)
	}
	return err
}
