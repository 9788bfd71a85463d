package line

import (
	"encoding/json"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/mattjoyce/linerelay/internal/relay"
)

// Parser verifies and decodes webhook bodies for one channel.
type Parser struct {
	channelSecret string
}

// NewParser returns a Parser for the channel secret.
func NewParser(channelSecret string) *Parser {
	return &Parser{channelSecret: channelSecret}
}

// Parse verifies the body signature and decodes its events. Both a bad
// signature and an undecodable body are reported as relay.ErrInvalidSignature.
func (p *Parser) Parse(body []byte, signature string) ([]relay.Event, error) {
	if err := VerifySignature(body, signature, p.channelSecret); err != nil {
		return nil, fmt.Errorf("%w: %w", relay.ErrInvalidSignature, err)
	}

	var cb webhook.CallbackRequest
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: decode webhook body: %w", relay.ErrInvalidSignature, err)
	}

	events := make([]relay.Event, 0, len(cb.Events))
	for _, ev := range cb.Events {
		events = append(events, convertEvent(ev))
	}
	return events, nil
}

func convertEvent(ev webhook.EventInterface) relay.Event {
	msg, ok := ev.(webhook.MessageEvent)
	if !ok {
		if ev == nil {
			return relay.Event{}
		}
		return relay.Event{Type: ev.GetType()}
	}

	out := relay.Event{
		ID:         msg.WebhookEventId,
		Type:       relay.EventTypeMessage,
		ReplyToken: msg.ReplyToken,
		UserID:     sourceUserID(msg.Source),
	}
	if msg.DeliveryContext != nil {
		out.Redelivery = msg.DeliveryContext.IsRedelivery
	}

	switch m := msg.Message.(type) {
	case webhook.TextMessageContent:
		out.MessageType = relay.MessageTypeText
		out.Text = m.Text
	case nil:
	default:
		out.MessageType = m.GetType()
	}
	return out
}

// sourceUserID returns the sending user. Group and room sources carry the
// user id only when the user has consented to share it.
func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}
