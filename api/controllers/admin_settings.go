package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/credstock/api/responses"
	"github.com/angelmondragon/credstock/api/validators"
	"github.com/angelmondragon/credstock/internal/alerts"
	"github.com/angelmondragon/credstock/internal/notify"
	"github.com/angelmondragon/credstock/internal/settings"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/telegram"
)

// SettingsStore reads and writes runtime settings.
type SettingsStore interface {
	Get(ctx context.Context) (settings.Snapshot, error)
	Update(ctx context.Context, update settings.Update) (settings.Snapshot, error)
}

// TelegramTester checks the configured bot and sends a test message.
type TelegramTester interface {
	Verify(ctx context.Context) (*telegram.Bot, error)
	Send(ctx context.Context, kind notify.Kind, payload notify.Payload) notify.Result
}

// StockChecker runs one alert evaluation.
type StockChecker interface {
	Evaluate(ctx context.Context) (alerts.CheckResult, error)
}

// AdminGetSettings returns settings with the bot token masked.
func AdminGetSettings(svc SettingsStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Get(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap.Masked())
	}
}

func AdminUpdateSettings(svc SettingsStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload settings.Update
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := svc.Update(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(r.Context(), "settings updated")
		}
		responses.WriteSuccess(w, snap.Masked())
	}
}

type telegramTestResponse struct {
	Success bool          `json:"success"`
	Bot     *telegram.Bot `json:"bot,omitempty"`
	Message string        `json:"message"`
}

// AdminTelegramTest verifies the stored bot token and sends a test message to the stored chat.
func AdminTelegramTest(tester TelegramTester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bot, err := tester.Verify(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "telegram verification failed").
				WithDetails(map[string]string{"error": err.Error()}))
			return
		}

		res := tester.Send(r.Context(), notify.KindTest, notify.Payload{})
		out := telegramTestResponse{Success: res.Success, Bot: bot, Message: "Test message sent successfully!"}
		if !res.Success {
			out.Message = res.Error
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminStockCheck runs the alert evaluation on demand.
func AdminStockCheck(checker StockChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := checker.Evaluate(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
