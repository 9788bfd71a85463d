package relay

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Event and message type discriminators as sent by the platform.
const (
	EventTypeMessage = "message"
	MessageTypeText  = "text"
)

// Event is one inbound webhook event, reduced to what the relay needs.
type Event struct {
	// ID is the platform's webhook event id. It survives redelivery.
	ID string
	// Type is the event discriminator ("message", "follow", ...).
	Type string
	// MessageType is the message discriminator ("text", "image", ...). Empty
	// for non-message events.
	MessageType string
	// ReplyToken is the opaque single-use token for answering this event.
	ReplyToken string
	// UserID identifies the sender.
	UserID string
	// Text is the message text for text messages.
	Text string
	// Redelivery is set when the platform is resending an event.
	Redelivery bool
}

// IsText reports whether e is a text message event.
func (e Event) IsText() bool {
	return e.Type == EventTypeMessage && e.MessageType == MessageTypeText
}

// Key identifies the event for redelivery dedupe. The platform's event id is
// preferred; the reply token is unique per event and stands in without it.
func (e Event) Key() string {
	if e.ID != "" {
		return e.ID
	}
	sum := blake3.Sum256([]byte(e.ReplyToken))
	return "rt:" + hex.EncodeToString(sum[:16])
}
