package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vigil/internal/domain"
	"vigil/internal/schedule"
)

const (
	defaultHTTPListen      = ":8080"
	defaultHealthPath      = "/healthz"
	defaultReadyPath       = "/readyz"
	defaultMaxBodyBytes    = 64 * 1024
	defaultTickSeconds     = 60
	defaultPollConcurrency = 8
	defaultGraceSeconds    = 300
	defaultPingDays        = 30
	defaultAlertDays       = 90
	defaultPruneSeconds    = 3600
	defaultStatsWindowDays = 7
	defaultStatsWorkers    = 2
	defaultStatsCapacity   = 1024
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultNATSBucket      = "vigil"

	// ServiceModeSingle keeps all state in process memory.
	ServiceModeSingle = "single"
	// ServiceModeNATS persists monitor state and watermarks in JetStream KV.
	ServiceModeNATS = "nats"
)

// Config holds service runtime settings and monitor definitions.
// Params: TOML sections decoded from one config file.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Log       LogConfig       `toml:"log"`
	HTTP      HTTPConfig      `toml:"http"`
	State     StateConfig     `toml:"state"`
	Retention RetentionConfig `toml:"retention"`
	Stats     StatsConfig     `toml:"stats"`
	Project   ProjectConfig   `toml:"project"`
	Monitor   []MonitorConfig `toml:"monitor"`
}

// ServiceConfig contains process-level settings.
// Params: service mode, tick cadence, poll fan-out, and reload toggle.
// Returns: scheduler and lifecycle defaults.
type ServiceConfig struct {
	Name            string `toml:"name"`
	Mode            string `toml:"mode"`
	TickIntervalSec int    `toml:"tick_interval_sec"`
	PollConcurrency int    `toml:"poll_concurrency"`
	ReloadEnabled   bool   `toml:"reload_enabled"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// HTTPConfig configures the inbound HTTP surface.
// Params: listen address, probe paths, and request body limit.
// Returns: server options for ping ingestion and control endpoints.
type HTTPConfig struct {
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// StateConfig selects the state backend.
// Params: NATS settings used in nats mode.
// Returns: backend options.
type StateConfig struct {
	NATS NATSStateConfig `toml:"nats"`
}

// NATSStateConfig contains JetStream KV settings for the state backend.
// Params: server URLs and bucket name.
// Returns: NATS state backend options.
type NATSStateConfig struct {
	URL    []string `toml:"url"`
	Bucket string   `toml:"bucket"`
}

// RetentionConfig bounds history growth.
// Params: retention spans in days and prune cadence.
// Returns: pruning policy for ping and alert history.
type RetentionConfig struct {
	PingDays         int `toml:"ping_days"`
	AlertDays        int `toml:"alert_days"`
	PruneIntervalSec int `toml:"prune_interval_sec"`
}

// StatsConfig tunes the duration recompute queue.
// Params: trailing window span, worker count, and queue capacity.
// Returns: stats queue options.
type StatsConfig struct {
	WindowDays int `toml:"window_days"`
	Workers    int `toml:"workers"`
	Capacity   int `toml:"capacity"`
}

// ProjectConfig names the project all monitors belong to.
// Params: stable id and display name.
// Returns: project snapshot carried in alert payloads.
type ProjectConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// MonitorConfig defines one monitor.
// Params: schedule spec, grace and alert policy, check, and channels.
// Returns: TOML model converted to a domain monitor.
type MonitorConfig struct {
	ID              string            `toml:"id"`
	Name            string            `toml:"name"`
	Kind            string            `toml:"kind"`
	PeriodSec       int               `toml:"period_sec"`
	Cron            string            `toml:"cron"`
	GraceSec        int               `toml:"grace_sec"`
	PollIntervalSec int               `toml:"poll_interval_sec"`
	RecoveryAlert   bool              `toml:"recovery_alert"`
	ReminderSec     int               `toml:"reminder_sec"`
	Sensitivity     string            `toml:"sensitivity"`
	Check           *CheckConfig      `toml:"check"`
	Channel         []ChannelTOMLSpec `toml:"channel"`
}

// CheckConfig describes the HTTP probe of one http-kind monitor.
// Params: request shape and response predicates.
// Returns: TOML model converted to a domain check.
type CheckConfig struct {
	URL            string            `toml:"url"`
	Method         string            `toml:"method"`
	Headers        map[string]string `toml:"headers"`
	Body           string            `toml:"body"`
	TimeoutSec     int               `toml:"timeout_sec"`
	ExpectedStatus int               `toml:"expected_status"`
	BodySubstring  string            `toml:"body_substring"`
}

// ChannelTOMLSpec is the TOML shape of one channel of the tagged union.
// Params: kind tag and one matching settings table.
// Returns: TOML model converted to a domain channel config.
type ChannelTOMLSpec struct {
	Kind       string                   `toml:"kind"`
	Telegram   *TelegramChannelConfig   `toml:"telegram"`
	Mattermost *MattermostChannelConfig `toml:"mattermost"`
	Webhook    *WebhookChannelConfig    `toml:"webhook"`
}

// TelegramChannelConfig holds Telegram transport settings.
// Params: bot token, chat id, and optional API base override.
// Returns: telegram channel payload.
type TelegramChannelConfig struct {
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	APIBase  string `toml:"api_base"`
}

// MattermostChannelConfig holds Mattermost transport settings.
// Params: API base, bot token, and destination channel id.
// Returns: mattermost channel payload.
type MattermostChannelConfig struct {
	BaseURL    string `toml:"base_url"`
	BotToken   string `toml:"bot_token"`
	ChannelID  string `toml:"channel_id"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// WebhookChannelConfig holds generic HTTP transport settings.
// Params: endpoint, method, headers, and timeout.
// Returns: webhook channel payload.
type WebhookChannelConfig struct {
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	Headers    map[string]string `toml:"headers"`
	TimeoutSec int               `toml:"timeout_sec"`
}

// Load reads and validates one TOML configuration file.
// Params: file path.
// Returns: validated config or load/validation error.
func Load(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills zero values with runtime defaults.
// Params: decoded config pointer.
// Returns: config mutated in place.
func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "vigil"
	}
	if cfg.Service.Mode == "" {
		cfg.Service.Mode = ServiceModeSingle
	}
	if cfg.Service.TickIntervalSec <= 0 {
		cfg.Service.TickIntervalSec = defaultTickSeconds
	}
	if cfg.Service.PollConcurrency <= 0 {
		cfg.Service.PollConcurrency = defaultPollConcurrency
	}

	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console = LogSinkConfig{Enabled: true, Level: "info", Format: "line"}
	}
	if cfg.Log.Console.Enabled {
		if cfg.Log.Console.Level == "" {
			cfg.Log.Console.Level = "info"
		}
		if cfg.Log.Console.Format == "" {
			cfg.Log.Console.Format = "line"
		}
	}
	if cfg.Log.File.Enabled {
		if cfg.Log.File.Level == "" {
			cfg.Log.File.Level = "info"
		}
		if cfg.Log.File.Format == "" {
			cfg.Log.File.Format = "json"
		}
	}

	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if cfg.HTTP.HealthPath == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if cfg.HTTP.ReadyPath == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.Service.Mode == ServiceModeNATS {
		if len(cfg.State.NATS.URL) == 0 {
			cfg.State.NATS.URL = []string{defaultNATSURL}
		}
		if cfg.State.NATS.Bucket == "" {
			cfg.State.NATS.Bucket = defaultNATSBucket
		}
	}

	if cfg.Retention.PingDays <= 0 {
		cfg.Retention.PingDays = defaultPingDays
	}
	if cfg.Retention.AlertDays <= 0 {
		cfg.Retention.AlertDays = defaultAlertDays
	}
	if cfg.Retention.PruneIntervalSec <= 0 {
		cfg.Retention.PruneIntervalSec = defaultPruneSeconds
	}

	if cfg.Stats.WindowDays <= 0 {
		cfg.Stats.WindowDays = defaultStatsWindowDays
	}
	if cfg.Stats.Workers <= 0 {
		cfg.Stats.Workers = defaultStatsWorkers
	}
	if cfg.Stats.Capacity <= 0 {
		cfg.Stats.Capacity = defaultStatsCapacity
	}

	if cfg.Project.ID == "" {
		cfg.Project.ID = "default"
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = cfg.Project.ID
	}

	for i := range cfg.Monitor {
		monitor := &cfg.Monitor[i]
		if monitor.Kind == "" {
			monitor.Kind = string(domain.KindCron)
		}
		if monitor.GraceSec <= 0 {
			monitor.GraceSec = defaultGraceSeconds
		}
		if monitor.Sensitivity == "" {
			monitor.Sensitivity = string(domain.SensitivityNormal)
		}
		if monitor.Name == "" {
			monitor.Name = monitor.ID
		}
	}
}

// validate checks the whole snapshot and reports every problem at once.
// Params: defaulted config.
// Returns: joined validation errors or nil.
func validate(cfg Config) error {
	var problems []error

	if cfg.Service.Mode != ServiceModeSingle && cfg.Service.Mode != ServiceModeNATS {
		problems = append(problems, fmt.Errorf("service.mode %q is not supported", cfg.Service.Mode))
	}
	if cfg.Log.File.Enabled && strings.TrimSpace(cfg.Log.File.Path) == "" {
		problems = append(problems, errors.New("log.file.path is required when the file sink is enabled"))
	}

	seen := make(map[string]bool, len(cfg.Monitor))
	for i, monitorCfg := range cfg.Monitor {
		prefix := fmt.Sprintf("monitor[%d]", i)
		if monitorCfg.ID == "" {
			problems = append(problems, fmt.Errorf("%s: id is required", prefix))
			continue
		}
		if seen[monitorCfg.ID] {
			problems = append(problems, fmt.Errorf("%s: duplicate monitor id %q", prefix, monitorCfg.ID))
		}
		seen[monitorCfg.ID] = true

		monitor, err := monitorCfg.toDomain(cfg.Project.ID)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s (%s): %w", prefix, monitorCfg.ID, err))
			continue
		}
		if err := schedule.Validate(monitor); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", prefix, err))
		}
		for j, channel := range monitor.Channels {
			if err := channel.Validate(); err != nil {
				problems = append(problems, fmt.Errorf("%s.channel[%d]: %w", prefix, j, err))
			}
		}
	}

	return errors.Join(problems...)
}

// Monitors converts every monitor definition to its domain form.
// Params: none; validation already passed.
// Returns: domain monitors bound to the configured project.
func (c Config) Monitors() []domain.Monitor {
	out := make([]domain.Monitor, 0, len(c.Monitor))
	for _, monitorCfg := range c.Monitor {
		monitor, err := monitorCfg.toDomain(c.Project.ID)
		if err != nil {
			continue
		}
		out = append(out, monitor)
	}
	return out
}

// DomainProject returns the configured project snapshot.
// Params: none.
// Returns: domain project.
func (c Config) DomainProject() domain.Project {
	return domain.Project{ID: c.Project.ID, Name: c.Project.Name}
}

// TickInterval returns the scheduler cadence as duration.
// Params: none.
// Returns: tick interval.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Service.TickIntervalSec) * time.Second
}

// PingRetention returns the ping history retention span.
// Params: none.
// Returns: retention duration.
func (c Config) PingRetention() time.Duration {
	return time.Duration(c.Retention.PingDays) * 24 * time.Hour
}

// AlertRetention returns the alert history retention span.
// Params: none.
// Returns: retention duration.
func (c Config) AlertRetention() time.Duration {
	return time.Duration(c.Retention.AlertDays) * 24 * time.Hour
}

// PruneInterval returns the retention pruning cadence.
// Params: none.
// Returns: prune interval.
func (c Config) PruneInterval() time.Duration {
	return time.Duration(c.Retention.PruneIntervalSec) * time.Second
}

// StatsWindow returns the trailing recompute window span.
// Params: none.
// Returns: window duration.
func (c Config) StatsWindow() time.Duration {
	return time.Duration(c.Stats.WindowDays) * 24 * time.Hour
}

// toDomain converts one TOML monitor into its domain form.
// Params: owning project id.
// Returns: domain monitor or conversion error for a malformed union.
func (m MonitorConfig) toDomain(projectID string) (domain.Monitor, error) {
	kind := domain.MonitorKind(strings.ToLower(strings.TrimSpace(m.Kind)))
	sensitivity := domain.Sensitivity(strings.ToLower(strings.TrimSpace(m.Sensitivity)))
	switch sensitivity {
	case domain.SensitivityLow, domain.SensitivityNormal, domain.SensitivityHigh:
	default:
		return domain.Monitor{}, fmt.Errorf("unsupported sensitivity %q", m.Sensitivity)
	}

	monitor := domain.Monitor{
		ID:              m.ID,
		ProjectID:       projectID,
		Name:            m.Name,
		Kind:            kind,
		PeriodSec:       m.PeriodSec,
		CronExpr:        m.Cron,
		GraceSec:        m.GraceSec,
		PollIntervalSec: m.PollIntervalSec,
		RecoveryAlert:   m.RecoveryAlert,
		ReminderSec:     m.ReminderSec,
		Sensitivity:     sensitivity,
		Status:          domain.StatusNew,
	}
	if m.Check != nil {
		monitor.Check = &domain.HTTPCheck{
			URL:            m.Check.URL,
			Method:         m.Check.Method,
			Headers:        m.Check.Headers,
			Body:           m.Check.Body,
			TimeoutSec:     m.Check.TimeoutSec,
			ExpectedStatus: m.Check.ExpectedStatus,
			BodySubstring:  m.Check.BodySubstring,
		}
	}

	for _, spec := range m.Channel {
		channel, err := spec.toDomain()
		if err != nil {
			return domain.Monitor{}, err
		}
		monitor.Channels = append(monitor.Channels, channel)
	}
	return monitor, nil
}

// toDomain converts one TOML channel spec into the domain union.
// Params: none.
// Returns: channel config or error for an unknown kind.
func (c ChannelTOMLSpec) toDomain() (domain.ChannelConfig, error) {
	kind := domain.ChannelKind(strings.ToLower(strings.TrimSpace(c.Kind)))
	out := domain.ChannelConfig{Kind: kind}
	switch kind {
	case domain.ChannelTelegram:
		if c.Telegram != nil {
			out.Telegram = &domain.TelegramChannel{
				BotToken: c.Telegram.BotToken,
				ChatID:   c.Telegram.ChatID,
				APIBase:  c.Telegram.APIBase,
			}
		}
	case domain.ChannelMattermost:
		if c.Mattermost != nil {
			out.Mattermost = &domain.MattermostChannel{
				BaseURL:    c.Mattermost.BaseURL,
				BotToken:   c.Mattermost.BotToken,
				ChannelID:  c.Mattermost.ChannelID,
				TimeoutSec: c.Mattermost.TimeoutSec,
			}
		}
	case domain.ChannelWebhook:
		if c.Webhook != nil {
			out.Webhook = &domain.WebhookChannel{
				URL:        c.Webhook.URL,
				Method:     c.Webhook.Method,
				Headers:    c.Webhook.Headers,
				TimeoutSec: c.Webhook.TimeoutSec,
			}
		}
	default:
		return domain.ChannelConfig{}, fmt.Errorf("unsupported channel kind %q", c.Kind)
	}
	return out, nil
}
