// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"strconv"
	"strings"

	"bookkeeper_bot/internal/domain/chat"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// AdminChecker reports whether a Telegram user id is an administrator.
type AdminChecker func(telegramID int64) bool

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	commands *BookCommands,
	isAdmin AdminChecker,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		ev, ok := eventFromContext(c, isAdmin)
		if !ok {
			return nil
		}
		startHelpLogger.WithField("command", "/start").WithField("sender_id", ev.SenderID).Info("Processing /start command")
		return c.Send("你好！我是记账助手。直接发送带金额的消费描述即可自动记账，使用 /book help 查看全部命令。")
	})

	b.Handle("/help", func(c telebot.Context) error {
		return c.Send(helpText)
	})

	bookLogger := baseLogger.WithField("handler_group", "book")
	bookHandler := func(c telebot.Context) error {
		ev, ok := eventFromContext(c, isAdmin)
		if !ok {
			bookLogger.Warn("Command without sender or chat ignored")
			return nil
		}
		return sendSplit(c, commands.Dispatch(ctx, ev, c.Args()))
	}
	b.Handle("/book", bookHandler)
	b.Handle("/bk", bookHandler)
}

// eventFromContext builds the chat event for the update. The second result is
// false for updates without a sender or chat (channel posts, service updates).
func eventFromContext(c telebot.Context, isAdmin AdminChecker) (chat.Event, bool) {
	sender, tgChat := c.Sender(), c.Chat()
	if sender == nil || tgChat == nil {
		return chat.Event{}, false
	}
	ev := chat.Event{
		Session:    strconv.FormatInt(tgChat.ID, 10),
		SenderID:   strconv.FormatInt(sender.ID, 10),
		SenderName: displayName(sender),
		IsAdmin:    isAdmin != nil && isAdmin(sender.ID),
	}
	if msg := c.Message(); msg != nil {
		ev.MessageID = strconv.Itoa(msg.ID)
	}
	return ev, true
}

func displayName(u *telebot.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return name
}
