package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"

	"vigil/internal/domain"
)

// TelegramSender posts alert messages to one Telegram chat.
// Params: bot client and destination chat id.
// Returns: telegram transport implementation.
type TelegramSender struct {
	identity string
	client   *tgbot.Bot
	chatID   any
	initErr  error
}

// NewTelegramSender creates Telegram sender.
// Params: telegram channel config.
// Returns: initialized sender; construction problems surface on Send.
func NewTelegramSender(cfg domain.ChannelConfig) *TelegramSender {
	sender := &TelegramSender{identity: cfg.Identity()}
	settings := cfg.Telegram
	if settings == nil {
		sender.initErr = errors.New("telegram channel settings missing")
		return sender
	}
	sender.chatID = normalizeChatID(settings.ChatID)

	options := []tgbot.Option{tgbot.WithSkipGetMe()}
	if settings.APIBase != "" {
		options = append(options, tgbot.WithServerURL(strings.TrimRight(settings.APIBase, "/")))
	}
	botClient, err := tgbot.New(settings.BotToken, options...)
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Identity returns channel identity string.
// Params: none.
// Returns: kind-prefixed destination identity.
func (s *TelegramSender) Identity() string {
	return s.identity
}

// Send posts one rendered alert message to the chat.
// Params: context and event payload.
// Returns: transport or API error.
func (s *TelegramSender) Send(ctx context.Context, event Event) error {
	if s.initErr != nil {
		return s.initErr
	}
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: s.chatID,
		Text:   RenderMessage(event),
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps names as string.
// Params: configured chat id value.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}

// MattermostSender posts alert messages through the Mattermost posts API.
// Params: channel config and bounded HTTP client.
// Returns: mattermost transport implementation.
type MattermostSender struct {
	identity string
	settings domain.MattermostChannel
	client   *http.Client
}

// NewMattermostSender creates Mattermost sender.
// Params: mattermost channel config.
// Returns: initialized sender.
func NewMattermostSender(cfg domain.ChannelConfig) *MattermostSender {
	settings := domain.MattermostChannel{}
	if cfg.Mattermost != nil {
		settings = *cfg.Mattermost
	}
	timeoutSec := settings.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &MattermostSender{
		identity: cfg.Identity(),
		settings: settings,
		client:   &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

// Identity returns channel identity string.
// Params: none.
// Returns: kind-prefixed destination identity.
func (s *MattermostSender) Identity() string {
	return s.identity
}

// Send posts one message to the configured channel.
// Params: context and event payload.
// Returns: transport or HTTP error.
func (s *MattermostSender) Send(ctx context.Context, event Event) error {
	payload := struct {
		ChannelID string `json:"channel_id"`
		Message   string `json:"message"`
	}{
		ChannelID: strings.TrimSpace(s.settings.ChannelID),
		Message:   RenderMessage(event),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode mattermost payload: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(s.settings.BaseURL), "/") + "/api/v4/posts"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mattermost request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+s.settings.BotToken)

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("mattermost send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedStatusError("mattermost", response)
	}
	return nil
}

// WebhookSender delivers the raw event payload as JSON to one HTTP endpoint.
// Params: channel config and bounded HTTP client.
// Returns: generic webhook transport implementation.
type WebhookSender struct {
	identity string
	settings domain.WebhookChannel
	client   *http.Client
}

// NewWebhookSender creates generic webhook sender.
// Params: webhook channel config.
// Returns: initialized sender.
func NewWebhookSender(cfg domain.ChannelConfig) *WebhookSender {
	settings := domain.WebhookChannel{}
	if cfg.Webhook != nil {
		settings = *cfg.Webhook
	}
	timeoutSec := settings.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &WebhookSender{
		identity: cfg.Identity(),
		settings: settings,
		client:   &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

// Identity returns channel identity string.
// Params: none.
// Returns: kind-prefixed destination identity.
func (s *WebhookSender) Identity() string {
	return s.identity
}

// Send delivers the JSON event payload to the configured endpoint.
// Params: context and event payload.
// Returns: transport or HTTP error.
func (s *WebhookSender) Send(ctx context.Context, event Event) error {
	// Channel configs carry credentials and never leave the process.
	snapshot := event
	snapshot.Monitor.Channels = nil

	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	method := strings.ToUpper(strings.TrimSpace(s.settings.Method))
	if method == "" {
		method = http.MethodPost
	}
	request, err := http.NewRequestWithContext(ctx, method, s.settings.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.settings.Headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedStatusError("webhook", response)
	}
	return nil
}

// unexpectedStatusError formats non-2xx response into error with body hint.
// Params: transport label and HTTP response.
// Returns: descriptive error.
func unexpectedStatusError(label string, response *http.Response) error {
	hint, _ := io.ReadAll(io.LimitReader(response.Body, 256))
	trimmed := strings.TrimSpace(string(hint))
	if trimmed == "" {
		return fmt.Errorf("%s returned status %s", label, response.Status)
	}
	return fmt.Errorf("%s returned status %s: %s", label, response.Status, trimmed)
}
