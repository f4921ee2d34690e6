package container

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/orbit/runtime/activity"
	"github.com/timzifer/orbit/runtime/queue"
	"github.com/timzifer/orbit/runtime/subscription"
	"github.com/timzifer/orbit/telemetry"
)

// DefaultSideEffectBufferSize matches the usual "buffered" channel sizing.
const DefaultSideEffectBufferSize = 64

// ExceptionHandler receives intent failures. Installing one also turns intent
// panics into *PanicError values instead of crashing the process.
type ExceptionHandler func(err error)

// Settings is the immutable configuration of a container.
type Settings struct {
	Name                          string
	SideEffectBufferSize          int
	IdlingRegistry                activity.Tracker
	EventLoopDispatcher           Dispatcher
	IntentDispatcher              Dispatcher
	ExceptionHandler              ExceptionHandler
	RepeatOnSubscribedStopTimeout time.Duration
	Logger                        zerolog.Logger
	Telemetry                     telemetry.Collector
	Equal                         func(a, b any) bool
}

// Option configures a container during construction.
type Option func(*Settings) error

func defaultSettings() Settings {
	return Settings{
		Name:                          "container",
		SideEffectBufferSize:          DefaultSideEffectBufferSize,
		EventLoopDispatcher:           Goroutines,
		IntentDispatcher:              Goroutines,
		RepeatOnSubscribedStopTimeout: subscription.DefaultStopTimeout,
		Logger:                        zerolog.Nop(),
		Telemetry:                     telemetry.Noop(),
		Equal:                         reflect.DeepEqual,
	}
}

// NewSettings applies opts on top of the defaults.
func NewSettings(opts ...Option) (Settings, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return Settings{}, err
		}
	}
	if d, ok := cfg.EventLoopDispatcher.(*LimitedDispatcher); ok && d == cfg.IntentDispatcher && d.Limit() < 2 {
		return Settings{}, fmt.Errorf("a single-slot dispatcher cannot run both the event loop and intents")
	}
	return cfg, nil
}

// WithName labels the container in logs and metrics.
func WithName(name string) Option {
	return func(cfg *Settings) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("container name must not be empty")
		}
		cfg.Name = name
		return nil
	}
}

// WithSideEffectBufferSize bounds the side-effect queue. Use queue.Unlimited
// for an unbounded queue.
func WithSideEffectBufferSize(size int) Option {
	return func(cfg *Settings) error {
		if size == 0 || size < queue.Unlimited {
			return fmt.Errorf("side effect buffer size must be positive or unlimited, got %d", size)
		}
		cfg.SideEffectBufferSize = size
		return nil
	}
}

// WithIdlingRegistry installs an activity tracker notified around every intent.
func WithIdlingRegistry(tracker activity.Tracker) Option {
	return func(cfg *Settings) error {
		cfg.IdlingRegistry = tracker
		return nil
	}
}

// WithEventLoopDispatcher selects where the dispatch loop runs.
func WithEventLoopDispatcher(d Dispatcher) Option {
	return func(cfg *Settings) error {
		if d == nil {
			return fmt.Errorf("event loop dispatcher must not be nil")
		}
		cfg.EventLoopDispatcher = d
		return nil
	}
}

// WithIntentDispatcher selects where intents are launched.
func WithIntentDispatcher(d Dispatcher) Option {
	return func(cfg *Settings) error {
		if d == nil {
			return fmt.Errorf("intent dispatcher must not be nil")
		}
		cfg.IntentDispatcher = d
		return nil
	}
}

// WithExceptionHandler routes intent failures to h.
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(cfg *Settings) error {
		cfg.ExceptionHandler = h
		return nil
	}
}

// WithRepeatOnSubscribedStopTimeout sets the grace period before subscription
// gated work is stopped after the last observer detached.
func WithRepeatOnSubscribedStopTimeout(d time.Duration) Option {
	return func(cfg *Settings) error {
		if d < 0 {
			return fmt.Errorf("stop timeout must be non-negative")
		}
		cfg.RepeatOnSubscribedStopTimeout = d
		return nil
	}
}

// WithLogger provides a custom logger instance for the container.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *Settings) error {
		cfg.Logger = logger
		return nil
	}
}

// WithTelemetry injects a metrics collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(cfg *Settings) error {
		if collector == nil {
			collector = telemetry.Noop()
		}
		cfg.Telemetry = collector
		return nil
	}
}

// WithStateEquality overrides how consecutive states are compared. Both
// arguments hold the container's state type.
func WithStateEquality(equal func(a, b any) bool) Option {
	return func(cfg *Settings) error {
		if equal == nil {
			return fmt.Errorf("state equality must not be nil")
		}
		cfg.Equal = equal
		return nil
	}
}

func stateEquality[S any](equal func(a, b any) bool) func(a, b S) bool {
	if equal == nil {
		return nil
	}
	return func(a, b S) bool { return equal(a, b) }
}
