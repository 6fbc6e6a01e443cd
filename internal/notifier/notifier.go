// Package notifier delivers text messages to the configured Telegram chat.
package notifier

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Telegram rejects requests slower than this on our side; the Bot API has no
// server-side deadline we can rely on.
const sendTimeout = 10 * time.Second

// ErrEmptyMessage is returned when Send is called with no text. The provider
// is never contacted in that case.
var ErrEmptyMessage = errors.New("message text must not be empty")

// Notifier sends one message per call to a fixed destination.
type Notifier interface {
	Send(ctx context.Context, text string, parseMode string) (*Receipt, error)
}

// Receipt carries the provider-assigned identity of a delivered message.
type Receipt struct {
	MessageID int    `json:"message_id"`
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
}

// SendError describes a rejected or failed outbound call. Code and
// Description come from the Telegram Bot API when available.
type SendError struct {
	Code        int
	Description string
	Timeout     bool
}

func (e *SendError) Error() string {
	return e.Description
}

// chat adapts the configured chat id (numeric id or @username) to telebot's
// Recipient without validating its format.
type chat string

func (c chat) Recipient() string { return string(c) }

// Telegram is the Bot API implementation of Notifier.
type Telegram struct {
	bot    *tele.Bot
	chatID chat
	log    *slog.Logger
}

// Option configures the Telegram notifier.
type Option func(*tele.Settings)

// WithAPIEndpoint points the client at an alternative Bot API server.
// Used by tests to target a local stub.
func WithAPIEndpoint(url string) Option {
	return func(s *tele.Settings) {
		s.URL = url
	}
}

// WithHTTPClient replaces the default transport, including its timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(s *tele.Settings) {
		s.Client = client
	}
}

// WithOffline skips the getMe verification call on construction.
func WithOffline() Option {
	return func(s *tele.Settings) {
		s.Offline = true
	}
}

// NewTelegram builds a notifier for the given credentials. Unless WithOffline
// is set, it verifies the token with one getMe call, so a bad token fails
// here rather than on the first send.
func NewTelegram(token, chatID string, log *slog.Logger, opts ...Option) (*Telegram, error) {
	settings := tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: sendTimeout},
	}
	for _, opt := range opts {
		opt(&settings)
	}

	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, asSendError(err)
	}

	return &Telegram{
		bot:    bot,
		chatID: chat(chatID),
		log:    log.With("component", "notifier"),
	}, nil
}

// Send issues exactly one sendMessage call. parseMode defaults to HTML when
// empty; the text is passed through unvalidated, so malformed markup is
// rejected by Telegram, not here. There is no retry and no cancellation
// mid-flight: the bounded client timeout is the only deadline.
func (t *Telegram) Send(ctx context.Context, text string, parseMode string) (*Receipt, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if parseMode == "" {
		parseMode = tele.ModeHTML
	}

	msg, err := t.bot.Send(t.chatID, text, &tele.SendOptions{ParseMode: parseMode})
	if err != nil {
		sendErr := asSendError(err)
		t.log.Error("send failed", "error", sendErr.Description, "code", sendErr.Code)
		return nil, sendErr
	}

	t.log.Debug("message delivered", "message_id", msg.ID, "chat_id", msg.Chat.ID)
	return &Receipt{
		MessageID: msg.ID,
		ChatID:    msg.Chat.ID,
		Text:      msg.Text,
	}, nil
}

// asSendError normalizes telebot and transport failures into *SendError.
func asSendError(err error) *SendError {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return &SendError{Code: apiErr.Code, Description: apiErr.Description}
	}

	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		// telebot only builds a FloodError for HTTP 429 responses and keeps
		// its inner *Error unexported, so the status code is fixed and the
		// API description is only reachable through Error().
		return &SendError{Code: http.StatusTooManyRequests, Description: floodErr.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &SendError{Description: "request to telegram timed out", Timeout: true}
	}

	return &SendError{Description: err.Error()}
}
