// Package history keeps conversation turns in process memory.
//
// A Store is created at startup and lives for the process lifetime. Nothing is
// persisted or evicted: a restart starts every conversation from scratch.
//
// Mutations for one key are serialized. Update holds the key for the whole
// read-modify-write, including any blocking work the callback does (such as a
// completion call), so two deliveries for the same user can never interleave
// their appends. Different keys never block each other.
package history

import (
	"context"
	"fmt"
	"strings"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// System returns a system turn.
func System(content string) Turn { return Turn{Role: RoleSystem, Content: content} }

// User returns a user turn.
func User(content string) Turn { return Turn{Role: RoleUser, Content: content} }

// Assistant returns an assistant turn.
func Assistant(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Mode selects how conversation history is keyed.
type Mode string

const (
	// ModeNone keeps no history; every message is answered on its own.
	ModeNone Mode = "none"
	// ModeLinear keeps one conversation shared by every sender.
	ModeLinear Mode = "linear"
	// ModePerUser keeps one conversation per sender id.
	ModePerUser Mode = "per-user"
)

// LinearKey is the key used for the shared conversation in ModeLinear.
const LinearKey = "linear"

// ParseMode parses a configured history mode. Empty means ModePerUser.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePerUser, "per_user", "peruser":
		return ModePerUser, nil
	case ModeLinear:
		return ModeLinear, nil
	case ModeNone:
		return ModeNone, nil
	default:
		return "", fmt.Errorf("unknown history mode %q (want none, linear or per-user)", s)
	}
}

// Key returns the store key for a sender under this mode. The boolean is false
// when the mode keeps no history.
func (m Mode) Key(userID string) (string, bool) {
	switch m {
	case ModeNone:
		return "", false
	case ModeLinear:
		return LinearKey, true
	default:
		return userID, true
	}
}

// Store is a keyed conversation store with per-key serialized updates.
type Store interface {
	// Update runs fn with a copy of the turns stored under key. If fn returns
	// nil, its result replaces the stored turns; otherwise nothing changes.
	Update(ctx context.Context, key string, fn func(turns []Turn) ([]Turn, error)) error
	// Get returns a copy of the turns stored under key.
	Get(key string) []Turn
}
