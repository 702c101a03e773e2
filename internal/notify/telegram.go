// Package notify pushes decision summaries to the merchant's Telegram chat.
// Notification is optional and best effort: it never blocks or fails the
// reservation path.
package notify

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"seatrelay/internal/models"
)

// Decision summarizes a handled reservation request for the merchant.
type Decision struct {
	Status       models.ReservationStatus
	Reason       string
	PartySize    int
	Time         int64
	TZID         string
	ThreadRootID string
}

// Notifier delivers decision summaries to the merchant.
type Notifier interface {
	NotifyDecision(d Decision) error
}

// TelegramNotifier sends summaries to a fixed chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

// NewTelegram creates a notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}, nil
}

// NotifyDecision sends one summary message.
func (n *TelegramNotifier) NotifyDecision(d Decision) error {
	text := formatDecision(d)
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		if n.logger != nil {
			n.logger.Error().Err(err).Str("thread_root_id", d.ThreadRootID).Msg("telegram notification failed")
		}
		return err
	}
	return nil
}

func formatDecision(d Decision) string {
	when := time.Unix(d.Time, 0).UTC()
	if loc, err := time.LoadLocation(d.TZID); err == nil {
		when = when.In(loc)
	}
	switch d.Status {
	case models.StatusConfirmed:
		return fmt.Sprintf("Reservation confirmed: party of %d on %s", d.PartySize, when.Format("Mon Jan 2 15:04"))
	case models.StatusDeclined:
		return fmt.Sprintf("Reservation declined (%s): party of %d on %s", d.Reason, d.PartySize, when.Format("Mon Jan 2 15:04"))
	default:
		return fmt.Sprintf("Reservation %s: party of %d on %s", d.Status, d.PartySize, when.Format("Mon Jan 2 15:04"))
	}
}

// NopNotifier discards every notification. Used when Telegram is not
// configured.
type NopNotifier struct{}

func (NopNotifier) NotifyDecision(Decision) error { return nil }
