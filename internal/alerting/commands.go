package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PongText answers /ping.
const PongText = "Pong! Meteora hot pool watcher is active."

const commandRetryDelay = 5 * time.Second

// CommandListener long-polls the bot's updates and answers chat commands.
// Only /ping is understood; everything else is ignored.
type CommandListener struct {
	notifier    *TelegramNotifier
	client      *http.Client
	pollTimeout time.Duration
	offset      int64
	logger      zerolog.Logger
}

// NewCommandListener builds a listener sharing the notifier's bot credentials.
func NewCommandListener(n *TelegramNotifier, pollTimeout time.Duration, logger zerolog.Logger) *CommandListener {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &CommandListener{
		notifier:    n,
		client:      &http.Client{Timeout: pollTimeout + 10*time.Second},
		pollTimeout: pollTimeout,
		logger:      logger.With().Str("component", "telegram_commands").Logger(),
	}
}

// Run polls until ctx is cancelled. Poll failures are logged and retried.
func (l *CommandListener) Run(ctx context.Context) error {
	l.logger.Info().Msg("listening for bot commands")
	for {
		if _, err := l.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn().Err(err).Msg("poll bot updates failed")

			timer := time.NewTimer(commandRetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// PollOnce fetches one batch of updates, answers commands and returns how many
// commands were handled.
func (l *CommandListener) PollOnce(ctx context.Context) (int, error) {
	query := url.Values{}
	query.Set("timeout", strconv.Itoa(int(l.pollTimeout.Seconds())))
	if l.offset > 0 {
		query.Set("offset", strconv.FormatInt(l.offset, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.notifier.methodURL("getUpdates")+"?"+query.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create getUpdates request: %w", err)
	}

	raw, err := l.notifier.do(req, "getUpdates", l.client)
	if err != nil {
		return 0, err
	}

	var updates []update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return 0, fmt.Errorf("decode updates: %w", err)
	}

	handled := 0
	for _, u := range updates {
		if u.UpdateID >= l.offset {
			l.offset = u.UpdateID + 1
		}
		if u.Message == nil || !isCommand(u.Message.Text, "ping") {
			continue
		}

		chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
		if err := l.notifier.SendText(ctx, chatID, PongText); err != nil {
			l.logger.Warn().Err(err).Str("chat_id", chatID).Msg("reply to /ping failed")
			continue
		}
		handled++
	}
	return handled, nil
}

// isCommand matches "/name" and "/name@botname", with optional arguments.
func isCommand(text, name string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.EqualFold(cmd, "/"+name)
}
