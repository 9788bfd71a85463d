package relay

import "errors"

// Error taxonomy. Callers classify failures with errors.Is.
var (
	// ErrInvalidSignature means the webhook body was not signed with the
	// channel secret, or could not be parsed after verification. Client error.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrCompletionProvider means the completion call failed. The stored
	// history is left as it was before the call.
	ErrCompletionProvider = errors.New("completion provider error")

	// ErrReplyDelivery means the reply could not be sent to the platform. It is
	// logged only; history already includes the answered turn.
	ErrReplyDelivery = errors.New("reply delivery error")
)
