package webhook

import (
	"context"
	"time"

	"github.com/mattjoyce/linerelay/internal/relay"
)

// EventParser verifies a callback body and turns it into relay events.
type EventParser interface {
	Parse(body []byte, signature string) ([]relay.Event, error)
}

// EventHandler processes the events of one delivery.
type EventHandler interface {
	HandleEvents(ctx context.Context, events []relay.Event) error
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// CallbackPath receives the platform's POST deliveries (default: /callback).
	CallbackPath string

	// SignatureHeader carries the body signature (default: X-Line-Signature).
	SignatureHeader string

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB).
	MaxBodySize int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// Default values
const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultCallbackPath    = "/callback"
	DefaultSignatureHeader = "X-Line-Signature"
	DefaultReadTimeout     = 10 * time.Second
	// Deliveries are answered synchronously, so the write timeout has to
	// cover a wait for the conversation, a completion call and the reply.
	DefaultWriteTimeout = 90 * time.Second
	HealthPath          = "/healthz"
)
