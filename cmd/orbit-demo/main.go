package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/orbit/config"
	"github.com/timzifer/orbit/internal/checkout"
	"github.com/timzifer/orbit/internal/logging"
	"github.com/timzifer/orbit/internal/reload"
	"github.com/timzifer/orbit/telemetry"
)

func main() {
	cfgPath := flag.String("config", "orbit.yaml", "Path to configuration file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	metricsListen := flag.String("metrics-listen", "", "Serve Prometheus metrics on this address (overrides telemetry.listen)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(cfg))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, cleanup, err := logging.Setup(cfg.Logging, cfg.ContainerName(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	collector, err := newTelemetryCollector(cfg.Telemetry)
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled")
		collector = telemetry.Noop()
	}

	listen := strings.TrimSpace(*metricsListen)
	if listen == "" && cfg.Telemetry.Enabled {
		listen = cfg.Telemetry.Listen
	}
	if listen != "" {
		stop := serveMetrics(listen, logger)
		defer stop()
	}

	if err := run(ctx, cfg, logger, collector); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("demo stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, collector telemetry.Collector) error {
	steps, err := scenarioSteps(cfg)
	if err != nil {
		return err
	}
	cart, err := checkout.New(ctx, checkout.Options{
		Currency:          cfg.Checkout.Currency,
		ProcessingDelay:   cfg.Checkout.ProcessingDelay.Duration,
		HeartbeatInterval: cfg.Checkout.HeartbeatInterval.Duration,
		Promotions:        promotionRules(cfg),
		Logger:            logger,
	}, cfg.ContainerOptions(logger, collector)...)
	if err != nil {
		return fmt.Errorf("create cart: %w", err)
	}
	defer cart.Container().Cancel()

	observe(ctx, cart, logger)

	if cfg.HotReload && cfg.Source != "" {
		watcher, err := reload.NewWatcher(cfg)
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		go watcher.Watch(ctx, time.Second, func(changed []string) {
			reloadPromotions(cart, cfg.Source, changed, logger)
		})
	}

	if err := cart.Run(ctx, steps); err != nil {
		return fmt.Errorf("run scenario: %w", err)
	}
	logger.Info().Int("steps", len(steps)).Msg("scenario finished")
	if cfg.Checkout.ExitAfterScenario {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-cart.Container().Done():
		return cart.Container().Err()
	}
}

func observe(ctx context.Context, cart *checkout.Cart, logger zerolog.Logger) {
	states := cart.Container().RefCountStateStream(ctx)
	effects := cart.Container().RefCountSideEffectStream(ctx)
	go func() {
		for st := range states {
			logger.Info().
				Str("status", string(st.Status)).
				Int("revision", st.Revision).
				Int("items", st.Quantity()).
				Str("subtotal", st.Subtotal.StringFixed(2)).
				Str("discount", st.Discount.StringFixed(2)).
				Str("total", st.Total.StringFixed(2)).
				Strs("promotions", st.Applied).
				Msg("state")
		}
	}()
	go func() {
		for effect := range effects {
			event := logger.Info()
			if effect.Kind == checkout.SideEffectError {
				event = logger.Warn()
			}
			event.Str("kind", string(effect.Kind)).Str("message", effect.Message).Msg("side effect")
		}
	}()
}

func reloadPromotions(cart *checkout.Cart, path string, changed []string, logger zerolog.Logger) {
	logger.Info().Strs("files", changed).Msg("configuration changed")
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error().Err(err).Msg("failed to reload configuration")
		return
	}
	if _, err := cart.SetPromotions(promotionRules(cfg)); err != nil {
		logger.Error().Err(err).Msg("reloaded promotions invalid")
	}
}

func promotionRules(cfg *config.Config) []checkout.Rule {
	rules := make([]checkout.Rule, 0, len(cfg.Checkout.Promotions))
	for _, promo := range cfg.Checkout.Promotions {
		rules = append(rules, checkout.Rule{ID: promo.ID, Expression: promo.Expression})
	}
	return rules
}

func scenarioSteps(cfg *config.Config) ([]checkout.Step, error) {
	steps := make([]checkout.Step, 0, len(cfg.Checkout.Scenario))
	for i, raw := range cfg.Checkout.Scenario {
		step, err := checkout.ParseStep(raw.Action, raw.SKU, raw.Price, raw.Quantity, raw.Duration.Duration)
		if err != nil {
			return nil, fmt.Errorf("scenario step %d: %w", i+1, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func executeConfigCheck(cfg *config.Config) int {
	exitCode := 0
	if _, err := checkout.CompilePromotions(promotionRules(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "promotions invalid: %v\n", err)
		exitCode = 1
	} else {
		fmt.Printf("Promotions: %d OK\n", len(cfg.Checkout.Promotions))
	}
	if steps, err := scenarioSteps(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "scenario invalid: %v\n", err)
		exitCode = 1
	} else {
		fmt.Printf("Scenario steps: %d OK\n", len(steps))
	}
	if _, err := newTelemetryCollector(cfg.Telemetry); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry invalid: %v\n", err)
		exitCode = 1
	}

	if exitCode == 0 {
		fmt.Println("Configuration check completed successfully.")
	} else {
		fmt.Println("Configuration check completed with errors.")
	}
	return exitCode
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		collector, err := telemetry.NewPrometheusCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		return collector, nil
	case "noop":
		return telemetry.Noop(), nil
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}

func serveMetrics(listen string, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("listen", listen).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
