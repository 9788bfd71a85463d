// Package webhook serves the messaging platform's callback endpoint.
//
// Every delivery is a signed JSON body. The server enforces a body size
// limit, hands the body and its signature to an EventParser and passes the
// resulting events to an EventHandler, answering only once all events of the
// delivery have been processed.
//
// # Security Model
//
// - HMAC-SHA256 signatures verified by the parser with a constant-time comparison
// - Body size limits enforced before any parsing
// - No signature details leaked in error responses (always a generic 400)
// - Request logging excludes payloads and message text
//
// # Request Flow
//
//  1. HTTP POST arrives at the callback path
//  2. Body size checked (reject with 413 if too large)
//  3. Signature header extracted (reject with 400 if missing)
//  4. Body verified and decoded (reject with 400 if invalid)
//  5. Events handled in order
//  6. 200 "OK" returned, or 500 if any event failed
//
// # Error Responses
//
// - 400 Bad Request: Missing or invalid signature, malformed body
// - 404 Not Found: Unknown path
// - 413 Payload Too Large: Body exceeds max_body_size
// - 500 Internal Server Error: An event could not be answered
//
// # Example Usage
//
//	server := webhook.New(webhook.Config{Listen: ":8000"}, line.NewParser(secret), relay, logger)
//	if err := server.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
