package domain

import (
	"errors"
	"fmt"
)

// ChannelKind identifies one notification transport implementation.
// Params: telegram/mattermost/webhook transport constants.
// Returns: closed enumeration dispatched to typed sender constructors.
type ChannelKind string

const (
	// ChannelTelegram delivers through the Telegram bot API.
	ChannelTelegram ChannelKind = "telegram"
	// ChannelMattermost delivers through the Mattermost posts API.
	ChannelMattermost ChannelKind = "mattermost"
	// ChannelWebhook delivers a JSON payload to a generic HTTP endpoint.
	ChannelWebhook ChannelKind = "webhook"
)

// TelegramChannel holds Telegram transport configuration.
// Params: bot token, destination chat, and optional API base override.
// Returns: typed payload for the telegram channel kind.
type TelegramChannel struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
	APIBase  string `json:"api_base,omitempty"`
}

// MattermostChannel holds Mattermost transport configuration.
// Params: API base URL, bot token, and destination channel id.
// Returns: typed payload for the mattermost channel kind.
type MattermostChannel struct {
	BaseURL    string `json:"base_url"`
	BotToken   string `json:"bot_token"`
	ChannelID  string `json:"channel_id"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// WebhookChannel holds generic HTTP transport configuration.
// Params: endpoint URL, method, headers, and timeout.
// Returns: typed payload for the webhook channel kind.
type WebhookChannel struct {
	URL        string            `json:"url"`
	Method     string            `json:"method,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
}

// ChannelConfig is closed tagged union of channel transport configurations.
// Params: kind tag and exactly one matching typed payload.
// Returns: transport descriptor dispatched by the notify registry.
type ChannelConfig struct {
	Kind       ChannelKind        `json:"kind"`
	Telegram   *TelegramChannel   `json:"telegram,omitempty"`
	Mattermost *MattermostChannel `json:"mattermost,omitempty"`
	Webhook    *WebhookChannel    `json:"webhook,omitempty"`
}

// Identity returns stable identity string for dedup, audit, and sender caching.
// Params: none.
// Returns: kind-prefixed destination identity.
func (c ChannelConfig) Identity() string {
	switch c.Kind {
	case ChannelTelegram:
		if c.Telegram != nil {
			return fmt.Sprintf("telegram:%s", c.Telegram.ChatID)
		}
	case ChannelMattermost:
		if c.Mattermost != nil {
			return fmt.Sprintf("mattermost:%s", c.Mattermost.ChannelID)
		}
	case ChannelWebhook:
		if c.Webhook != nil {
			return fmt.Sprintf("webhook:%s", c.Webhook.URL)
		}
	}
	return string(c.Kind)
}

// Validate checks that the kind tag matches exactly one typed payload.
// Params: none.
// Returns: descriptive error when the union is malformed.
func (c ChannelConfig) Validate() error {
	switch c.Kind {
	case ChannelTelegram:
		if c.Telegram == nil {
			return errors.New("telegram channel requires telegram settings")
		}
		if c.Telegram.BotToken == "" || c.Telegram.ChatID == "" {
			return errors.New("telegram channel requires bot_token and chat_id")
		}
	case ChannelMattermost:
		if c.Mattermost == nil {
			return errors.New("mattermost channel requires mattermost settings")
		}
		if c.Mattermost.BaseURL == "" || c.Mattermost.ChannelID == "" {
			return errors.New("mattermost channel requires base_url and channel_id")
		}
	case ChannelWebhook:
		if c.Webhook == nil {
			return errors.New("webhook channel requires webhook settings")
		}
		if c.Webhook.URL == "" {
			return errors.New("webhook channel requires url")
		}
	default:
		return fmt.Errorf("unsupported channel kind %q", c.Kind)
	}
	return nil
}
