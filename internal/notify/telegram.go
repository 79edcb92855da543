package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/angelmondragon/credstock/internal/settings"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/metrics"
	"github.com/angelmondragon/credstock/pkg/telegram"
)

// TelegramParams configure the Telegram notifier.
type TelegramParams struct {
	Settings   settings.Provider
	Formatter  *Formatter
	Logger     *logger.Logger
	Metrics    *metrics.StockMetrics
	BaseURL    string
	MaxRetries int
	HTTPClient *http.Client
}

// Telegram delivers notifications to the chat configured in runtime settings.
type Telegram struct {
	params TelegramParams

	mu     sync.Mutex
	token  string
	client *telegram.Client
}

func NewTelegram(params TelegramParams) *Telegram {
	if params.Formatter == nil {
		params.Formatter = NewFormatter("")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Telegram{params: params}
}

// Send formats and delivers one message. Failures are returned in the Result only.
func (t *Telegram) Send(ctx context.Context, kind Kind, payload Payload) (res Result) {
	ctx = t.params.Logger.WithField(ctx, "notification", string(kind))
	defer func() {
		if r := recover(); r != nil {
			res = Result{Error: fmt.Sprintf("notifier panic: %v", r)}
		}
		t.record(ctx, kind, res)
	}()

	snap, err := t.params.Settings.Get(ctx)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if !snap.TelegramReady() {
		return Result{Error: errNotConfigured}
	}

	client, err := t.clientFor(snap.TelegramBotToken)
	if err != nil {
		return Result{Error: err.Error()}
	}
	text := t.params.Formatter.Render(kind, payload, snap.TelegramHeader, snap.TelegramFooter)
	if err := client.SendMessage(ctx, snap.TelegramChatID, text); err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Success: true}
}

// Verify checks the stored bot token against the Bot API.
func (t *Telegram) Verify(ctx context.Context) (*telegram.Bot, error) {
	snap, err := t.params.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	client, err := t.clientFor(snap.TelegramBotToken)
	if err != nil {
		return nil, err
	}
	return client.GetMe(ctx)
}

// clientFor reuses the client until the token changes.
func (t *Telegram) clientFor(token string) (*telegram.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil && t.token == token {
		return t.client, nil
	}
	client, err := telegram.NewClient(token,
		telegram.WithBaseURL(t.params.BaseURL),
		telegram.WithHTTPClient(t.params.HTTPClient),
		telegram.WithRetries(t.params.MaxRetries, 500*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	t.token = token
	t.client = client
	return client, nil
}

func (t *Telegram) record(ctx context.Context, kind Kind, res Result) {
	outcome := "sent"
	switch {
	case res.Success:
	case res.Error == errNotConfigured:
		outcome = "skipped"
	default:
		outcome = "failed"
	}
	t.params.Metrics.IncNotification(string(kind), outcome)

	switch outcome {
	case "sent":
		t.params.Logger.Info(ctx, "notification sent")
	case "skipped":
		t.params.Logger.Debug(ctx, "notification skipped, telegram not configured")
	default:
		t.params.Logger.Warn(t.params.Logger.WithField(ctx, "error", res.Error), "notification failed")
	}
}
