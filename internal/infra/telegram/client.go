// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements chat.Sender using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendText sends text to the chat whose id is session, split into several
// messages when it is over Telegram's length limit.
func (tba *TelebotAdapter) SendText(ctx context.Context, session, text string) error {
	chatID, err := parseSession(session)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	recipient := &telebot.Chat{ID: chatID}
	for _, part := range splitMessage(text, maxMessageLength) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if _, err := tba.bot.Send(recipient, part); err != nil {
			return err
		}
	}
	return nil
}

func parseSession(session string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(session), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session %q: %w", session, err)
	}
	return chatID, nil
}
