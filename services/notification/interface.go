package notification

import "context"

// Button is one inline choice; Token round-trips opaquely through the chat
// transport and is decoded back into an action at the bot boundary.
type Button struct {
	Label string
	Token string
}

// ChatSender delivers messages to a chat user. Implementations are
// best-effort: callers treat a send failure as a DeliveryFailure to log,
// never as a reason to abort a batch.
type ChatSender interface {
	// SendText delivers a plain text message.
	SendText(ctx context.Context, chatID int64, text string) error
	// SendButtons delivers a message with inline button rows and returns the
	// message ID so the prompt can later be edited in place.
	SendButtons(ctx context.Context, chatID int64, text string, rows [][]Button) (int, error)
	// EditMessage replaces a previously sent message's text and buttons.
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, rows [][]Button) error
}
