package line

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// MaxTextLength is the longest text message the platform accepts, in characters.
const MaxTextLength = 5000

// DefaultReplyTimeout bounds one reply call.
const DefaultReplyTimeout = 10 * time.Second

// ClientConfig configures the Messaging API client.
type ClientConfig struct {
	ChannelAccessToken string
	// Endpoint overrides the API base URL. Empty uses the SDK default.
	Endpoint string
	// Timeout bounds each API call.
	Timeout time.Duration
}

// Client sends replies through the Messaging API.
type Client struct {
	api *messaging_api.MessagingApiAPI
}

// NewClient creates a Messaging API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.ChannelAccessToken == "" {
		return nil, fmt.Errorf("line: channel access token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultReplyTimeout
	}

	opts := []messaging_api.MessagingApiAPIOption{
		messaging_api.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(cfg.Endpoint))
	}

	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("line: create messaging api client: %w", err)
	}
	return &Client{api: api}, nil
}

// Reply answers an event with one text message. Text over MaxTextLength is
// cut at a character boundary.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: truncate(text, MaxTextLength)},
		},
	})
	if err != nil {
		return fmt.Errorf("line: reply message: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
