package messaging

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter posts admin alerts for purchases that need a human: new
// submissions and anything that lands in manual review or is flagged as a
// duplicate.
type TelegramAlerter struct {
	bot    telegramSender
	chatID int64
}

func NewTelegramAlerter(token string, chatID int64) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramAlerter{bot: bot, chatID: chatID}, nil
}

func (a *TelegramAlerter) Notify(ctx context.Context, event domain.PurchaseEvent) error {
	text, ok := alertText(event)
	if !ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(a.chatID, text)
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func alertText(event domain.PurchaseEvent) (string, bool) {
	var headline string
	switch {
	case event.Name == domain.EventPurchaseCreated:
		headline = "New purchase"
		if event.Type == "created_audit" {
			headline = "Purchase imported"
		}
	case event.Status == domain.PurchaseStatusManualReview:
		headline = "Purchase needs manual review"
	case event.Status == domain.PurchaseStatusDuplicated:
		headline = "Duplicated bank reference"
	default:
		return "", false
	}

	var b strings.Builder
	b.WriteString(headline)
	fmt.Fprintf(&b, "\nraffle: %s\npurchase: %s", event.RaffleID, event.PurchaseID)
	if event.Status != "" {
		fmt.Fprintf(&b, "\nstatus: %s", event.Status)
	}
	if event.Message != "" {
		fmt.Fprintf(&b, "\n%s", event.Message)
	}
	return b.String(), true
}
