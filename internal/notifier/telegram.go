package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dockwatch/internal/models"
)

const (
	defaultBaseURL     = "https://api.telegram.org"
	defaultMaxAttempts = 3
	defaultPollTimeout = 30 * time.Second
	sendTimeout        = 10 * time.Second
	pollErrorPause     = 5 * time.Second
)

var ErrNotConfigured = errors.New("telegram not configured")

type Options struct {
	// RatePerSecond caps outgoing messages; zero or less disables the limit.
	RatePerSecond float64
	MaxAttempts   int
	PollTimeout   time.Duration
	Logger        *slog.Logger
}

type Telegram struct {
	HTTP    *http.Client
	BaseURL string

	mu     sync.RWMutex
	token  string
	chatID string

	limiter     *rate.Limiter
	maxAttempts int
	pollTimeout time.Duration
	backoff     func(attempt int) time.Duration
	log         *slog.Logger
}

func NewTelegram(token, chatID string, opts Options) *Telegram {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Telegram{
		HTTP:        &http.Client{},
		BaseURL:     defaultBaseURL,
		token:       token,
		chatID:      chatID,
		limiter:     rate.NewLimiter(limit, 1),
		maxAttempts: opts.MaxAttempts,
		pollTimeout: opts.PollTimeout,
		backoff:     func(attempt int) time.Duration { return time.Duration(attempt) * 300 * time.Millisecond },
		log:         opts.Logger,
	}
}

func (t *Telegram) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token != ""
}

func (t *Telegram) Update(token, chatID string) {
	t.mu.Lock()
	t.token = token
	t.chatID = chatID
	t.mu.Unlock()
}

// DefaultChat is the destination used for events that do not name one.
func (t *Telegram) DefaultChat() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chatID
}

func (t *Telegram) credentials() (string, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token, t.chatID
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// APIError is a non-OK answer from the Bot API.
type APIError struct {
	Status      int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram status %d: %s", e.Status, e.Description)
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Send delivers msg to chatID, or to the default chat when chatID is empty.
// Rate limiting and retries happen here; the caller sees one final result.
func (t *Telegram) Send(ctx context.Context, chatID, msg string) error {
	token, def := t.credentials()
	if chatID == "" {
		chatID = def
	}
	if token == "" || chatID == "" {
		return ErrNotConfigured
	}

	var err error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if werr := t.limiter.Wait(ctx); werr != nil {
			return werr
		}
		err = t.sendOnce(ctx, token, chatID, msg)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return err
		}
		if attempt == t.maxAttempts {
			break
		}
		wait := t.backoff(attempt)
		if apiErr != nil && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}
		t.log.Debug("telegram send retry", "attempt", attempt, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("after %d attempts: %w", t.maxAttempts, err)
}

func (t *Telegram) sendOnce(ctx context.Context, token, chatID, msg string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	payload := map[string]any{"chat_id": chatID, "text": msg, "disable_web_page_preview": true}
	_, err := t.call(ctx, token, "sendMessage", payload)
	return err
}

func (t *Telegram) call(ctx context.Context, token, method string, payload any) (json.RawMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/bot%s/%s", t.BaseURL, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var out apiResponse
	if jerr := json.Unmarshal(body, &out); jerr != nil {
		if res.StatusCode >= 300 {
			return nil, &APIError{Status: res.StatusCode, Description: string(truncate(body, 2048))}
		}
		return nil, fmt.Errorf("decode %s response: %w", method, jerr)
	}
	if res.StatusCode >= 300 || !out.OK {
		apiErr := &APIError{Status: res.StatusCode, Description: out.Description}
		if out.ErrorCode != 0 {
			apiErr.Status = out.ErrorCode
		}
		if out.Parameters != nil && out.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(out.Parameters.RetryAfter) * time.Second
		}
		return nil, apiErr
	}
	return out.Result, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID int64 `json:"message_id"`
	From      *struct {
		ID int64 `json:"id"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

func (m *message) inbound() models.InboundMessage {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	sender := chatID
	if m.From != nil {
		sender = strconv.FormatInt(m.From.ID, 10)
	}
	return models.InboundMessage{SenderID: sender, ChatID: chatID, Text: m.Text, HasText: m.Text != ""}
}

// Messages long-polls getUpdates and streams received messages until ctx is
// cancelled, then closes the channel. It is meant to be called once.
func (t *Telegram) Messages(ctx context.Context) <-chan models.InboundMessage {
	out := make(chan models.InboundMessage)
	go func() {
		defer close(out)
		var offset int64
		for ctx.Err() == nil {
			token, _ := t.credentials()
			if token == "" {
				if !sleepCtx(ctx, pollErrorPause) {
					return
				}
				continue
			}
			updates, err := t.getUpdates(ctx, token, offset)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.log.Warn("telegram get updates", "err", err)
				if !sleepCtx(ctx, pollErrorPause) {
					return
				}
				continue
			}
			for _, u := range updates {
				if u.UpdateID >= offset {
					offset = u.UpdateID + 1
				}
				if u.Message == nil {
					continue
				}
				select {
				case out <- u.Message.inbound():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (t *Telegram) getUpdates(ctx context.Context, token string, offset int64) ([]update, error) {
	ctx, cancel := context.WithTimeout(ctx, t.pollTimeout+sendTimeout)
	defer cancel()
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(t.pollTimeout / time.Second),
		"allowed_updates": []string{"message"},
	}
	raw, err := t.call(ctx, token, "getUpdates", payload)
	if err != nil {
		return nil, err
	}
	var updates []update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
