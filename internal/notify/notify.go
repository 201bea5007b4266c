package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vigil/internal/domain"
)

// Event is the outbound payload contract shared by all channel transports.
// Params: event kind, monitor and project snapshots, and enrichment context.
// Returns: one delivery unit handed to channel senders.
type Event struct {
	Kind    domain.EventKind    `json:"kind"`
	Monitor domain.Monitor      `json:"monitor"`
	Project domain.Project      `json:"project"`
	Context domain.AlertContext `json:"context"`
	At      time.Time           `json:"at"`
}

// ChannelSender delivers one alert event to one destination.
// Params: context and event payload.
// Returns: transport error when delivery fails.
type ChannelSender interface {
	Identity() string
	Send(ctx context.Context, event Event) error
}

// NewSender builds a transport for one typed channel configuration.
// Params: validated channel config union.
// Returns: channel sender or error for an unsupported kind.
func NewSender(cfg domain.ChannelConfig) (ChannelSender, error) {
	switch cfg.Kind {
	case domain.ChannelTelegram:
		return NewTelegramSender(cfg), nil
	case domain.ChannelMattermost:
		return NewMattermostSender(cfg), nil
	case domain.ChannelWebhook:
		return NewWebhookSender(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported channel kind %q", cfg.Kind)
	}
}

// Registry caches constructed senders by channel identity.
// Params: guarded identity-to-sender map.
// Returns: sender source for the alert dispatcher.
type Registry struct {
	mu      sync.Mutex
	senders map[string]ChannelSender
}

// NewRegistry creates empty sender registry.
// Params: none.
// Returns: initialized registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]ChannelSender)}
}

// Sender returns the cached transport for one channel config, building it
// on first use.
// Params: validated channel config.
// Returns: channel sender or construction error.
func (r *Registry) Sender(cfg domain.ChannelConfig) (ChannelSender, error) {
	identity := cfg.Identity()

	r.mu.Lock()
	defer r.mu.Unlock()
	if sender, ok := r.senders[identity]; ok {
		return sender, nil
	}
	sender, err := NewSender(cfg)
	if err != nil {
		return nil, err
	}
	r.senders[identity] = sender
	return sender, nil
}
