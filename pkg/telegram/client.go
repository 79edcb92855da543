package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/sethvargo/go-retry"
)

const (
	defaultBaseURL              = "https://api.telegram.org"
	defaultRetryBase            = 500 * time.Millisecond
	responseBodyReadLimit int64 = 1024

	ParseModeHTML = "HTML"
)

var (
	errTokenRequired  = errors.New("telegram bot token is required")
	errChatIDRequired = errors.New("telegram chat id is required")
)

// Client talks to the Telegram Bot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	maxRetries uint64
	retryBase  time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Bot API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithRetries sets how many times a throttled or 5xx request is retried and the initial backoff.
func WithRetries(max int, base time.Duration) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = uint64(max)
		}
		if base > 0 {
			c.retryBase = base
		}
	}
}

// NewClient builds a Bot API client for the given token.
func NewClient(token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		token:      trimmed,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 2,
		retryBase:  defaultRetryBase,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	return client, nil
}

// Bot identifies the account behind the token.
type Bot struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

// SendMessage posts an HTML formatted message to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "telegram client not configured")
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, errChatIDRequired, "send message")
	}
	if strings.TrimSpace(text) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "message text is required")
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             ParseModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal sendMessage request")
	}

	_, err = c.call(ctx, http.MethodPost, "sendMessage", payload)
	return err
}

// GetMe verifies the token and returns the bot identity.
func (c *Client) GetMe(ctx context.Context) (*Bot, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "telegram client not configured")
	}
	raw, err := c.call(ctx, http.MethodGet, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var bot Bot
	if err := json.Unmarshal(raw, &bot); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode getMe result")
	}
	return &bot, nil
}

func (c *Client) call(ctx context.Context, method, apiMethod string, body []byte) (json.RawMessage, error) {
	var result json.RawMessage
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.buildURL(apiMethod), reader)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build telegram request")
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute telegram request"))
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
			return retry.RetryableError(statusError(apiMethod, resp.StatusCode, msg))
		}

		var decoded apiResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
			if resp.StatusCode != http.StatusOK {
				return statusError(apiMethod, resp.StatusCode, nil)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode telegram response")
		}
		if !decoded.OK || resp.StatusCode != http.StatusOK {
			return statusError(apiMethod, resp.StatusCode, []byte(decoded.Description))
		}
		result = decoded.Result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func statusError(apiMethod string, status int, msg []byte) error {
	return pkgerrors.Wrap(
		pkgerrors.CodeDependency,
		fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(msg))),
		fmt.Sprintf("telegram %s failed", apiMethod),
	)
}

// buildURL never appears in logs; the token is part of the path.
func (c *Client) buildURL(apiMethod string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.baseURL, "/"), c.token, apiMethod)
}
