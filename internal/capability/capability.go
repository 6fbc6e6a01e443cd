// Package capability holds the table of operations clients may invoke and
// dispatches calls to their handlers.
//
// Today the table has a single entry, the Telegram text notification. The
// registry is data-driven so that adding a capability is a new Descriptor
// plus handler, not a structural change.
package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1F47E/mcp-telegram/internal/metrics"
	"github.com/1F47E/mcp-telegram/internal/notifier"
)

// NotifyText is the name of the single registered capability.
const NotifyText = "notify_with_telegram:text"

// ErrUnknownCapability is returned when the requested name is not registered.
var ErrUnknownCapability = errors.New("unknown capability")

// ErrInvalidArguments is returned when the required message field is absent,
// empty, or not a string. The notifier is never called in that case.
var ErrInvalidArguments = errors.New("invalid arguments")

// Descriptor declares one capability and its input schema, in the MCP
// inputSchema shape expected by tools/list consumers.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Handler executes one capability call.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type entry struct {
	descriptor Descriptor
	handler    Handler
}

// Registry is the fixed capability table.
type Registry struct {
	entries []entry
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewRegistry builds the registry with the Telegram notification capability
// bound to the given notifier.
func NewRegistry(n notifier.Notifier, m *metrics.Metrics, log *slog.Logger) *Registry {
	r := &Registry{
		metrics: m,
		log:     log.With("component", "capability"),
	}
	r.register(notifyTextDescriptor(), notifyTextHandler(n))
	return r
}

func (r *Registry) register(d Descriptor, h Handler) {
	r.entries = append(r.entries, entry{descriptor: d, handler: h})
}

// List returns the registered capability descriptors.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.descriptor)
	}
	return out
}

// Dispatch finds the named capability, validates its arguments and runs it.
// Every accepted call yields exactly one result or one error.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	var found *entry
	for i := range r.entries {
		if r.entries[i].descriptor.Name == name {
			found = &r.entries[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}

	start := time.Now()
	result, err := found.handler(ctx, args)
	r.metrics.ObserveDispatch(name, time.Since(start), err == nil)

	if err != nil {
		r.log.Warn("dispatch failed", "capability", name, "error", err)
		return nil, err
	}
	return result, nil
}

func notifyTextDescriptor() Descriptor {
	return Descriptor{
		Name:        NotifyText,
		Description: "Send a text message via Telegram",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "The message text to send. May contain Telegram's HTML tag subset.",
				},
				"parse_mode": map[string]any{
					"type":        "string",
					"enum":        []string{"Markdown", "MarkdownV2", "HTML"},
					"description": "Text formatting mode",
					"default":     "HTML",
				},
			},
			"required": []string{"message"},
		},
	}
}

func notifyTextHandler(n notifier.Notifier) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		message, ok := args["message"].(string)
		if !ok || message == "" {
			return nil, fmt.Errorf("%w: missing 'message' parameter", ErrInvalidArguments)
		}

		// Accepted but not validated; the provider rejects unknown modes.
		parseMode, _ := args["parse_mode"].(string)

		receipt, err := n.Send(ctx, message, parseMode)
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"success":    true,
			"message_id": receipt.MessageID,
			"chat_id":    receipt.ChatID,
			"text":       receipt.Text,
		}, nil
	}
}
