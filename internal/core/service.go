package core

import (
	"context"
	"time"
)

// Recorder receives the outcome of every write. internal/metrics provides
// the Prometheus implementation.
type Recorder interface {
	ObserveWrite(entity Entity, op, outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveWrite(Entity, string, string, time.Duration) {}

// Options configures a Service. Zero values select the defaults.
type Options struct {
	// Geofence is the narrow coordinate check. A zero value disables it.
	Geofence            Geofence
	MaxConcurrentWrites int
	MaxWriteWait        time.Duration
	Recorder            Recorder
	// Clock overrides time.Now for temporal validation.
	Clock func() time.Time
}

// Service assembles, validates and persists crash, person and vehicle
// records, plus their detail rows.
type Service struct {
	store    Store
	limiter  *WriteLimiter
	fence    Geofence
	recorder Recorder
	clock    func() time.Time
}

// NewService creates a Service over store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:    store,
		limiter:  NewWriteLimiter(opts.MaxConcurrentWrites, opts.MaxWriteWait),
		fence:    opts.Geofence,
		recorder: opts.Recorder,
		clock:    opts.Clock,
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// now is the current wall clock, comparable with stored timestamps.
func (s *Service) now() time.Time {
	return WallClock(s.clock())
}

// Geofence returns the active coordinate fence.
func (s *Service) Geofence() Geofence {
	return s.fence
}

// WriterStatus reports write slot usage.
func (s *Service) WriterStatus() WriterStatus {
	return s.limiter.Status()
}

// WaitForWrites blocks until in-flight writes finish or ctx ends.
func (s *Service) WaitForWrites(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// observe reports a finished write to the recorder.
func (s *Service) observe(entity Entity, op string, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = KindStorageFailure.String()
		if f, ok := AsFailure(err); ok {
			outcome = f.Kind.String()
		}
	}
	s.recorder.ObserveWrite(entity, op, outcome, time.Since(start))
}
