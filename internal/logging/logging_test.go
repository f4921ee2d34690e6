package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/common/model"

	"github.com/timzifer/orbit/config"
)

func TestSetupWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{Level: "debug"}, "demo", &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer cleanup()

	logger.Debug().Str("job", "orbit-intent-1").Msg("intent captured")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["service"] != "demo" || entry["job"] != "orbit-intent-1" || entry["level"] != "debug" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestSetupFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := Setup(config.LoggingConfig{Level: "WARN"}, "", &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if _, _, err := Setup(config.LoggingConfig{Level: "loud"}, "", nil); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetupRequiresLokiURL(t *testing.T) {
	cfg := config.LoggingConfig{Loki: config.LokiConfig{Enabled: true}}
	if _, _, err := Setup(cfg, "demo", nil); err == nil {
		t.Fatalf("expected error for missing loki url")
	}
}

func TestLokiLabelsDefaults(t *testing.T) {
	labels := lokiLabels(config.LokiConfig{Labels: map[string]string{"env": "test"}}, "demo")
	want := model.LabelSet{"env": "test", "app": "orbit", "service": "demo"}
	if !labels.Equal(want) {
		t.Fatalf("unexpected labels %v", labels)
	}
}
