package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"relaybot/internal/relay"
	logx "relaybot/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (local bot API server, tests).
	APIURL string
	// ScratchChatID is a private chat the bot may post to. Source messages
	// are read by forwarding them there and deleting the copy.
	ScratchChatID int64

	RequestsPerSecond float64
	Burst             int
	HTTPTimeout       time.Duration
	// PollTimeout is the getUpdates long-poll timeout (default 10s).
	PollTimeout time.Duration

	// Offline skips the getMe handshake.
	Offline bool
}

// Adapter is the Telegram side of the relay: it implements
// relay.Platform, relay.Forwarder, relay.DocumentRenamer and
// transport.Sender on top of the Bot API.
type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *RateLimiter
}

var (
	_ relay.Platform        = (*Adapter)(nil)
	_ relay.Forwarder       = (*Adapter)(nil)
	_ relay.DocumentRenamer = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     cfg.APIURL,
		Client:  &http.Client{Timeout: cfg.HTTPTimeout + cfg.PollTimeout},
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}
	if b.Me != nil && b.Me.Username != "" {
		log.Info("telegram bot ready", logx.String("username", b.Me.Username), logx.Int64("id", b.Me.ID))
	}
	if cfg.ScratchChatID == 0 {
		log.Warn("no scratch chat configured; source text is not read and rules are not applied")
	}
	return a, nil
}

// Limiter exposes the shared request limiter.
func (a *Adapter) Limiter() *RateLimiter { return a.limiter }

// SetLogger swaps the boot logger for the configured one.
func (a *Adapter) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		a.log = log
	}
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  struct {
		RetryAfter      int   `json:"retry_after"`
		MigrateToChatID int64 `json:"migrate_to_chat_id"`
	} `json:"parameters"`
}

// call performs a raw Bot API request and decodes "result" into out (when
// non-nil). Errors are classified for the relay engine.
func (a *Adapter) call(ctx context.Context, method string, payload, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	data, err := a.bot.Raw(method, payload)
	if err != nil {
		return a.classify(method, data, err)
	}
	if out == nil {
		return nil
	}
	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

var retryAfterRE = regexp.MustCompile(`(?i)retry after (\d+)`)

// notFoundMarkers are Bot API descriptions meaning the source message is
// gone or was never relayable.
var notFoundMarkers = []string{
	"not found",
	"message_id_invalid",
	"message can't be copied",
	"message can't be forwarded",
}

// classify maps Bot API failures onto the relay error taxonomy:
// flood control becomes relay.RateLimited, missing messages relay.NotFound.
func (a *Adapter) classify(method string, data []byte, err error) error {
	var resp apiResponse
	if len(data) > 0 {
		_ = json.Unmarshal(data, &resp)
	}

	wrapped := fmt.Errorf("telegram %s: %w", method, err)

	if wait, ok := retryAfter(resp, err); ok {
		a.limiter.SetFloodWait(wait)
		a.log.Warn("telegram flood control", logx.String("method", method), logx.Duration("retry_after", wait))
		return relay.RateLimited(wrapped, wait)
	}

	desc := strings.ToLower(resp.Description)
	if desc == "" {
		desc = strings.ToLower(err.Error())
	}
	for _, m := range notFoundMarkers {
		if strings.Contains(desc, m) {
			return relay.NotFound(wrapped)
		}
	}
	return wrapped
}

func retryAfter(resp apiResponse, err error) (time.Duration, bool) {
	if resp.ErrorCode == http.StatusTooManyRequests || resp.Parameters.RetryAfter > 0 {
		return time.Duration(resp.Parameters.RetryAfter) * time.Second, true
	}
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return time.Duration(fe.RetryAfter) * time.Second, true
	}
	if m := retryAfterRE.FindStringSubmatch(err.Error()); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			return time.Duration(n) * time.Second, true
		}
	}
	return 0, false
}
