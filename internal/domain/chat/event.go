package chat

import "context"

// Event describes who sent an inbound message and where it came from.
type Event struct {
	Session    string // Conversation identifier replies and pushes are addressed to
	SenderID   string
	SenderName string
	MessageID  string // Used for tool-call deduplication, may be empty
	IsAdmin    bool
}

// Sender delivers a rendered text message to a session.
// This keeps application logic independent from the bot library.
type Sender interface {
	SendText(ctx context.Context, session string, text string) error
}
