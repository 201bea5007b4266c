package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vigil/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigil.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[project]
id = "payments"

[[monitor]]
id = "nightly-backup"
period_sec = 86400
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Service.Mode != ServiceModeSingle {
		t.Fatalf("mode = %q, want single default", cfg.Service.Mode)
	}
	if cfg.TickInterval() != time.Minute {
		t.Fatalf("tick interval = %v, want 60s default", cfg.TickInterval())
	}
	if cfg.HTTP.Listen != ":8080" || cfg.HTTP.MaxBodyBytes != 64*1024 {
		t.Fatalf("http defaults = %+v", cfg.HTTP)
	}
	if !cfg.Log.Console.Enabled || cfg.Log.Console.Format != "line" {
		t.Fatalf("console sink defaults = %+v", cfg.Log.Console)
	}
	if cfg.PingRetention() != 30*24*time.Hour || cfg.AlertRetention() != 90*24*time.Hour {
		t.Fatalf("retention defaults = %v/%v", cfg.PingRetention(), cfg.AlertRetention())
	}
	if cfg.StatsWindow() != 7*24*time.Hour {
		t.Fatalf("stats window = %v, want 7d default", cfg.StatsWindow())
	}

	monitors := cfg.Monitors()
	if len(monitors) != 1 {
		t.Fatalf("monitors = %d, want 1", len(monitors))
	}
	monitor := monitors[0]
	if monitor.Kind != domain.KindCron || monitor.GraceSec != 300 || monitor.Sensitivity != domain.SensitivityNormal {
		t.Fatalf("monitor defaults = %+v", monitor)
	}
	if monitor.ProjectID != "payments" || monitor.Name != "nightly-backup" {
		t.Fatalf("monitor binding = %+v", monitor)
	}
	if monitor.Status != domain.StatusNew {
		t.Fatalf("status = %s, want new", monitor.Status)
	}
}

func TestLoadFullMonitorDefinition(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[service]
mode = "single"
tick_interval_sec = 30

[project]
id = "edge"
name = "Edge Services"

[[monitor]]
id = "api"
name = "public api"
kind = "http"
poll_interval_sec = 120
grace_sec = 60
recovery_alert = true
reminder_sec = 900
sensitivity = "high"

[monitor.check]
url = "https://api.example.com/health"
expected_status = 204
timeout_sec = 5
body_substring = "ok"

[[monitor.channel]]
kind = "telegram"
[monitor.channel.telegram]
bot_token = "123:abc"
chat_id = "-100200300"

[[monitor.channel]]
kind = "webhook"
[monitor.channel.webhook]
url = "https://hooks.example.com/vigil"
method = "PUT"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	monitor := cfg.Monitors()[0]
	if monitor.Kind != domain.KindHTTP || monitor.PollIntervalSec != 120 {
		t.Fatalf("monitor = %+v", monitor)
	}
	if monitor.Check == nil || monitor.Check.ExpectedStatus != 204 || monitor.Check.BodySubstring != "ok" {
		t.Fatalf("check = %+v", monitor.Check)
	}
	if len(monitor.Channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(monitor.Channels))
	}
	if monitor.Channels[0].Identity() != "telegram:-100200300" {
		t.Fatalf("channel identity = %q", monitor.Channels[0].Identity())
	}
	if monitor.Channels[1].Webhook == nil || monitor.Channels[1].Webhook.Method != "PUT" {
		t.Fatalf("webhook channel = %+v", monitor.Channels[1])
	}
	if cfg.DomainProject().Name != "Edge Services" {
		t.Fatalf("project = %+v", cfg.DomainProject())
	}
}

func TestLoadReportsEveryValidationProblem(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[[monitor]]
id = "a"
kind = "cron"

[[monitor]]
id = "a"
kind = "http"

[[monitor]]
id = "b"
kind = "http"
poll_interval_sec = 60
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("load accepted invalid config")
	}
	text := err.Error()
	for _, want := range []string{"duplicate monitor id", "cron expression or period", "check url"} {
		if !strings.Contains(text, want) {
			t.Fatalf("error %q missing %q", text, want)
		}
	}
}

func TestLoadRejectsUnknownChannelKind(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[[monitor]]
id = "a"
period_sec = 60

[[monitor.channel]]
kind = "pager"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported channel kind") {
		t.Fatalf("load = %v, want unsupported channel kind error", err)
	}
}

func TestLoadRejectsBadSensitivity(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[[monitor]]
id = "a"
period_sec = 60
sensitivity = "extreme"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported sensitivity") {
		t.Fatalf("load = %v, want sensitivity error", err)
	}
}

func TestLoadNATSModeDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[service]
mode = "nats"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.State.NATS.URL) != 1 || cfg.State.NATS.Bucket != "vigil" {
		t.Fatalf("nats state defaults = %+v", cfg.State.NATS)
	}
}

func TestLoadFileSinkRequiresPath(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[log.file]
enabled = true
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "log.file.path") {
		t.Fatalf("load = %v, want file sink path error", err)
	}
}
