package experiment

import (
	"log/slog"
	"time"

	"github.com/roach88/txiso/internal/store"
)

// Recorder receives experiment measurements. internal/metrics implements it
// with Prometheus collectors.
type Recorder interface {
	// UnitFinished is called once per runner unit.
	UnitFinished(lock store.LockMode, committed bool, elapsed time.Duration)

	// WorkspaceAllocated is called after every successful allocation.
	WorkspaceAllocated()

	// TrialObserved is called once per executed plan with the number of
	// increments lost on the target account.
	TrialObserved(lock store.LockMode, lost int64)
}

type nopRecorder struct{}

func (nopRecorder) UnitFinished(store.LockMode, bool, time.Duration) {}
func (nopRecorder) WorkspaceAllocated()                              {}
func (nopRecorder) TrialObserved(store.LockMode, int64)              {}

// Option configures a Runner or an Experiment.
type Option func(*settings)

type settings struct {
	logger   *slog.Logger
	recorder Recorder
	ids      IDGenerator
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:   slog.Default(),
		recorder: nopRecorder{},
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the measurement sink.
func WithRecorder(r Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithIDGenerator sets the run id source. Tests use FixedGenerator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *settings) {
		if g != nil {
			s.ids = g
		}
	}
}
