package telegram

import (
	"context"
	"strings"

	"bookkeeper_bot/internal/domain/chat"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// ExpenseExtractor offers a free-text message to the language model and returns
// the reply to post, empty when nothing was recorded.
type ExpenseExtractor interface {
	Extract(ctx context.Context, ev chat.Event, text string) (string, error)
}

// AutoExtractGate reports whether the sender's messages may be offered to the extractor.
type AutoExtractGate interface {
	AutoExtractActive(ev chat.Event) bool
}

// RegisterMessageHandler routes plain text messages to the extractor.
func RegisterMessageHandler(
	ctx context.Context,
	b *telebot.Bot,
	gate AutoExtractGate,
	extractor ExpenseExtractor,
	isAdmin AdminChecker,
	baseLogger *logrus.Entry,
) {
	handlerLogger := baseLogger.WithField("handler", "on_text")

	b.Handle(telebot.OnText, func(c telebot.Context) error {
		reply := handleText(ctx, c.Text(), gate, extractor, handlerLogger, func() (chat.Event, bool) {
			return eventFromContext(c, isAdmin)
		})
		if reply == "" {
			return nil
		}
		return sendSplit(c, reply)
	})
}

func handleText(
	ctx context.Context,
	text string,
	gate AutoExtractGate,
	extractor ExpenseExtractor,
	logger *logrus.Entry,
	event func() (chat.Event, bool),
) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "/") || extractor == nil {
		return ""
	}
	ev, ok := event()
	if !ok || !gate.AutoExtractActive(ev) {
		return ""
	}
	logCtx := logger.WithFields(logrus.Fields{"sender_id": ev.SenderID, "session": ev.Session})
	reply, err := extractor.Extract(ctx, ev, text)
	if err != nil {
		logCtx.WithError(err).Error("Expense extraction failed")
		return ""
	}
	return reply
}
