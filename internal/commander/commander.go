package commander

// Sender is the outbound half of the chat boundary; the pipeline only needs this.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Commander is the inbound/outbound chat source abstraction used by the poll loop.
type Commander interface {
	GetUpdates(offset int64, timeout int) ([]Update, error)
	Sender
}

// Update represents one incoming chat event.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents an inbound text message.
type Message struct {
	Chat Chat    `json:"chat"`
	Text *string `json:"text,omitempty"`
	Date int64   `json:"date"`
}

// Chat identifies a conversation.
type Chat struct {
	ID int64 `json:"id"`
}
