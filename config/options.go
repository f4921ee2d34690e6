package config

import (
	"github.com/rs/zerolog"

	"github.com/timzifer/orbit/container"
	"github.com/timzifer/orbit/telemetry"
)

// ContainerOptions translates the container section into construction options.
func (c *Config) ContainerOptions(logger zerolog.Logger, collector telemetry.Collector) []container.Option {
	opts := []container.Option{
		container.WithName(c.ContainerName()),
		container.WithLogger(logger),
		container.WithTelemetry(collector),
	}
	if c == nil {
		return opts
	}
	if size := c.Container.SideEffectBuffer; size != 0 {
		opts = append(opts, container.WithSideEffectBufferSize(size))
	}
	if timeout := c.Container.StopTimeout.Duration; timeout > 0 {
		opts = append(opts, container.WithRepeatOnSubscribedStopTimeout(timeout))
	}
	if workers := c.Container.IntentWorkers; workers > 0 {
		opts = append(opts, container.WithIntentDispatcher(container.NewLimitedDispatcher(workers)))
	}
	return opts
}
