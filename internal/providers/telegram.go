package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"emergency-service/internal/logging"
	"emergency-service/internal/utils"
)

// Telegram posts operator escalations to a single chat.
type Telegram struct {
	token   string
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
}

func NewTelegram(token string, chatID int64, ratePerSecond int, logger *logging.Logger) *Telegram {
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	return &Telegram{
		token:   token,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:  logger,
	}
}

// Escalate sends text as a Markdown message, retrying transient failures.
func (t *Telegram) Escalate(ctx context.Context, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	return utils.Retry(ctx, t.logger, 3, time.Second, func(ctx context.Context) error {
		b, err := bot.New(t.token)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot: %w", err)
		}

		params := &bot.SendMessageParams{
			ChatID:    t.chatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
		}
		return nil
	})
}
