package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/credstock/internal/repo"
	"github.com/angelmondragon/credstock/pkg/config"
	"github.com/angelmondragon/credstock/pkg/db/models"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"gorm.io/gorm"
)

const (
	KeyTelegramEnabled      = "telegram_enabled"
	KeyTelegramBotToken     = "telegram_bot_token"
	KeyTelegramChatID       = "telegram_chat_id"
	KeyTelegramHeader       = "telegram_header"
	KeyTelegramFooter       = "telegram_footer"
	KeyStockThreshold       = "stock_threshold"
	KeyCheckIntervalMinutes = "check_interval_minutes"
	KeyNotifyOnAdd          = "notify_on_add"
	KeyNotifyOnSold         = "notify_on_sold"

	maxIntervalMinutes = 24 * 60
)

// Snapshot is the typed view of every runtime setting.
type Snapshot struct {
	TelegramEnabled      bool   `json:"telegram_enabled"`
	TelegramBotToken     string `json:"telegram_bot_token"`
	TelegramChatID       string `json:"telegram_chat_id"`
	TelegramHeader       string `json:"telegram_header"`
	TelegramFooter       string `json:"telegram_footer"`
	StockThreshold       int64  `json:"stock_threshold"`
	CheckIntervalMinutes int    `json:"check_interval_minutes"`
	NotifyOnAdd          bool   `json:"notify_on_add"`
	NotifyOnSold         bool   `json:"notify_on_sold"`
}

// CheckInterval is the scheduler cadence.
func (s Snapshot) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalMinutes) * time.Minute
}

// TelegramReady reports whether chat delivery is enabled and fully configured.
func (s Snapshot) TelegramReady() bool {
	return s.TelegramEnabled && strings.TrimSpace(s.TelegramBotToken) != "" && strings.TrimSpace(s.TelegramChatID) != ""
}

// Masked hides the bot token for display.
func (s Snapshot) Masked() Snapshot {
	if tok := s.TelegramBotToken; tok != "" {
		keep := 4
		if len(tok) <= keep {
			keep = 0
		}
		s.TelegramBotToken = strings.Repeat("*", len(tok)-keep) + tok[len(tok)-keep:]
	}
	return s
}

func (s Snapshot) values() map[string]string {
	return map[string]string{
		KeyTelegramEnabled:      strconv.FormatBool(s.TelegramEnabled),
		KeyTelegramBotToken:     s.TelegramBotToken,
		KeyTelegramChatID:       s.TelegramChatID,
		KeyTelegramHeader:       s.TelegramHeader,
		KeyTelegramFooter:       s.TelegramFooter,
		KeyStockThreshold:       strconv.FormatInt(s.StockThreshold, 10),
		KeyCheckIntervalMinutes: strconv.Itoa(s.CheckIntervalMinutes),
		KeyNotifyOnAdd:          strconv.FormatBool(s.NotifyOnAdd),
		KeyNotifyOnSold:         strconv.FormatBool(s.NotifyOnSold),
	}
}

// apply overlays a stored value. Unparseable values keep the default.
func (s *Snapshot) apply(key, value string) {
	switch key {
	case KeyTelegramEnabled:
		if b, err := strconv.ParseBool(value); err == nil {
			s.TelegramEnabled = b
		}
	case KeyTelegramBotToken:
		s.TelegramBotToken = value
	case KeyTelegramChatID:
		s.TelegramChatID = value
	case KeyTelegramHeader:
		s.TelegramHeader = value
	case KeyTelegramFooter:
		s.TelegramFooter = value
	case KeyStockThreshold:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
			s.StockThreshold = n
		}
	case KeyCheckIntervalMinutes:
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			s.CheckIntervalMinutes = n
		}
	case KeyNotifyOnAdd:
		if b, err := strconv.ParseBool(value); err == nil {
			s.NotifyOnAdd = b
		}
	case KeyNotifyOnSold:
		if b, err := strconv.ParseBool(value); err == nil {
			s.NotifyOnSold = b
		}
	}
}

// DefaultsFromConfig builds the seed snapshot from environment configuration.
func DefaultsFromConfig(cfg *config.Config) Snapshot {
	minutes := int(cfg.Lifecycle.Interval / time.Minute)
	if minutes <= 0 {
		minutes = 60
	}
	return Snapshot{
		TelegramEnabled:      cfg.Telegram.Enabled,
		TelegramBotToken:     cfg.Telegram.BotToken,
		TelegramChatID:       cfg.Telegram.ChatID,
		TelegramHeader:       cfg.Telegram.Header,
		TelegramFooter:       cfg.Telegram.Footer,
		StockThreshold:       cfg.Alerts.Threshold,
		CheckIntervalMinutes: minutes,
		NotifyOnAdd:          true,
		NotifyOnSold:         true,
	}
}

// Update carries a partial settings change. Nil fields are left untouched.
type Update struct {
	TelegramEnabled      *bool   `json:"telegram_enabled"`
	TelegramBotToken     *string `json:"telegram_bot_token"`
	TelegramChatID       *string `json:"telegram_chat_id"`
	TelegramHeader       *string `json:"telegram_header"`
	TelegramFooter       *string `json:"telegram_footer"`
	StockThreshold       *int64  `json:"stock_threshold"`
	CheckIntervalMinutes *int    `json:"check_interval_minutes"`
	NotifyOnAdd          *bool   `json:"notify_on_add"`
	NotifyOnSold         *bool   `json:"notify_on_sold"`
}

func (u Update) validate() error {
	details := map[string]string{}
	if u.StockThreshold != nil && *u.StockThreshold < 0 {
		details[KeyStockThreshold] = "must be zero or greater"
	}
	if u.CheckIntervalMinutes != nil && (*u.CheckIntervalMinutes < 1 || *u.CheckIntervalMinutes > maxIntervalMinutes) {
		details[KeyCheckIntervalMinutes] = fmt.Sprintf("must be between 1 and %d", maxIntervalMinutes)
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid settings").WithDetails(details)
	}
	return nil
}

func (u Update) changes() map[string]string {
	out := map[string]string{}
	if u.TelegramEnabled != nil {
		out[KeyTelegramEnabled] = strconv.FormatBool(*u.TelegramEnabled)
	}
	if u.TelegramBotToken != nil {
		out[KeyTelegramBotToken] = strings.TrimSpace(*u.TelegramBotToken)
	}
	if u.TelegramChatID != nil {
		out[KeyTelegramChatID] = strings.TrimSpace(*u.TelegramChatID)
	}
	if u.TelegramHeader != nil {
		out[KeyTelegramHeader] = *u.TelegramHeader
	}
	if u.TelegramFooter != nil {
		out[KeyTelegramFooter] = *u.TelegramFooter
	}
	if u.StockThreshold != nil {
		out[KeyStockThreshold] = strconv.FormatInt(*u.StockThreshold, 10)
	}
	if u.CheckIntervalMinutes != nil {
		out[KeyCheckIntervalMinutes] = strconv.Itoa(*u.CheckIntervalMinutes)
	}
	if u.NotifyOnAdd != nil {
		out[KeyNotifyOnAdd] = strconv.FormatBool(*u.NotifyOnAdd)
	}
	if u.NotifyOnSold != nil {
		out[KeyNotifyOnSold] = strconv.FormatBool(*u.NotifyOnSold)
	}
	return out
}

// Provider is the read side consumed by notifiers, alerts and the scheduler.
type Provider interface {
	Get(ctx context.Context) (Snapshot, error)
}

// Service persists settings and keeps the last loaded snapshot until a write invalidates it.
type Service struct {
	base     repo.Base
	defaults Snapshot

	mu     sync.RWMutex
	cached *Snapshot
}

func NewService(conn *gorm.DB, defaults Snapshot) *Service {
	return &Service{base: repo.NewBase(conn), defaults: defaults}
}

// Seed inserts defaults for keys that have never been stored.
func (s *Service) Seed(ctx context.Context) error {
	rows := make([]models.Setting, 0, 9)
	for key, value := range s.defaults.values() {
		rows = append(rows, models.Setting{Key: key, Value: value})
	}
	if err := repo.Upsert(s.base.DB(ctx), &rows, []string{"key"}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed settings")
	}
	s.Invalidate()
	return nil
}

func (s *Service) Get(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	if s.cached != nil {
		snap := *s.cached
		s.mu.RUnlock()
		return snap, nil
	}
	s.mu.RUnlock()

	var rows []models.Setting
	if err := s.base.DB(ctx).Find(&rows).Error; err != nil {
		return s.defaults, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settings")
	}
	snap := s.defaults
	for _, row := range rows {
		snap.apply(row.Key, row.Value)
	}

	s.mu.Lock()
	s.cached = &snap
	s.mu.Unlock()
	return snap, nil
}

// Update validates and persists the change in one transaction, then drops the cache.
func (s *Service) Update(ctx context.Context, update Update) (Snapshot, error) {
	if err := update.validate(); err != nil {
		return Snapshot{}, err
	}
	changes := update.changes()
	if len(changes) == 0 {
		return s.Get(ctx)
	}

	err := s.base.Tx(ctx, func(tx *gorm.DB) error {
		for key, value := range changes {
			row := models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
			if err := repo.Upsert(tx, &row, []string{"key"}, "value", "updated_at"); err != nil {
				return err
			}
		}
		return nil
	})
	s.Invalidate()
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settings")
	}
	return s.Get(ctx)
}

func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
