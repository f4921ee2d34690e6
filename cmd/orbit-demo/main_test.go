package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/timzifer/orbit/config"
	"github.com/timzifer/orbit/telemetry"
)

const demoConfig = `container:
  name: demo-cart
checkout:
  currency: EUR
  promotions:
    - id: bulk
      expression: "quantity >= 3 ? 1 : 0"
  scenario:
    - action: add
      sku: apple
      price: "2.00"
      quantity: 3
    - action: checkout
  exit_after_scenario: true
`

func TestRunScenarioAndExit(t *testing.T) {
	cfg, err := config.Parse([]byte(demoConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := run(context.Background(), cfg, zerolog.Nop(), telemetry.Noop()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestScenarioStepsRejectsBadPrice(t *testing.T) {
	cfg := &config.Config{Checkout: config.CheckoutConfig{Scenario: []config.StepConfig{{Action: "add", SKU: "x", Price: "free"}}}}
	if _, err := scenarioSteps(cfg); err == nil {
		t.Fatalf("expected error for bad price")
	}
}

func TestExecuteConfigCheck(t *testing.T) {
	cfg, err := config.Parse([]byte(demoConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if code := executeConfigCheck(cfg); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	cfg.Checkout.Promotions = append(cfg.Checkout.Promotions, config.PromotionConfig{ID: "broken", Expression: "1 +"})
	if code := executeConfigCheck(cfg); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestNewTelemetryCollector(t *testing.T) {
	collector, err := newTelemetryCollector(config.TelemetryConfig{})
	if err != nil || collector == nil {
		t.Fatalf("expected noop collector, got %v, %v", collector, err)
	}
	if _, err := newTelemetryCollector(config.TelemetryConfig{Enabled: true, Provider: "statsd"}); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}
