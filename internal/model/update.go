package model

// ChatType is the scope a message arrived in.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// User identifies the author of an inbound message.
type User struct {
	ID    int64
	IsBot bool
	Name  string
}

// RepliedMessage carries the fields of a replied-to message that the
// trigger engine inspects: who authored it, whether it is a channel
// post forwarded into the discussion group, and its text for priority
// context.
type RepliedMessage struct {
	MessageID          int64
	AuthorID           int64
	AuthorIsBot        bool
	SenderChatType     ChatType
	IsAutomaticForward bool
	Text               string
}

// Update is one inbound platform message event.
type Update struct {
	UpdateID  int64
	ChatID    int64
	ChatType  ChatType
	ChatTitle string
	ThreadID  int64
	MessageID int64
	From      User
	Text      string
	ReplyTo   *RepliedMessage
}
