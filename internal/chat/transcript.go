package chat

import (
	"github.com/zombor/kassir/internal/store"
)

// WelcomeID identifies the seeded welcome message
const WelcomeID = "welcome"

// MaxPersisted is how many conversation messages are kept
const MaxPersisted = 50

// Transcript is the welcome message followed by the conversation
type Transcript struct {
	welcome  Message
	messages []Message
}

// NewTranscript creates a transcript holding only the welcome message
func NewTranscript(welcome Message) *Transcript {
	return &Transcript{welcome: welcome, messages: []Message{}}
}

// LoadTranscript restores the conversation stored under key. Missing,
// empty or corrupted data yields a transcript with just the welcome message.
func LoadTranscript(kv store.KV, key string, welcome Message) *Transcript {
	t := NewTranscript(welcome)
	for _, m := range store.Load[[]Message](kv, key, nil) {
		if m.ID == WelcomeID {
			continue
		}
		t.messages = append(t.messages, m)
	}
	t.trim()
	return t
}

func (t *Transcript) trim() {
	if over := len(t.messages) - MaxPersisted; over > 0 {
		t.messages = append([]Message(nil), t.messages[over:]...)
	}
}

// SetWelcome replaces the welcome message text
func (t *Transcript) SetWelcome(welcome Message) {
	t.welcome = welcome
}

// Append adds m, dropping the oldest message beyond MaxPersisted
func (t *Transcript) Append(m Message) {
	t.messages = append(t.messages, m)
	t.trim()
}

// Clear removes everything except the welcome message
func (t *Transcript) Clear() {
	t.messages = []Message{}
}

// RemoveRole drops all messages with role and returns their ids
func (t *Transcript) RemoveRole(role Role) []string {
	removed := []string{}
	kept := t.messages[:0]
	for _, m := range t.messages {
		if m.Role == role {
			removed = append(removed, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	t.messages = kept
	return removed
}

// Find returns the message with id, including the welcome message
func (t *Transcript) Find(id string) (Message, bool) {
	if id == WelcomeID {
		return t.welcome, true
	}
	for _, m := range t.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// PromptFor returns the user message closest before the message with id
func (t *Transcript) PromptFor(id string) string {
	prompt := ""
	for _, m := range t.messages {
		if m.ID == id {
			return prompt
		}
		if m.Role == RoleUser {
			prompt = m.Content
		}
	}
	return ""
}

// Messages returns the welcome message followed by the conversation
func (t *Transcript) Messages() []Message {
	out := make([]Message, 0, len(t.messages)+1)
	out = append(out, t.welcome)
	return append(out, t.messages...)
}

// Persisted returns the conversation without the welcome message
func (t *Transcript) Persisted() []Message {
	return append([]Message(nil), t.messages...)
}

// Len counts conversation messages, not the welcome message
func (t *Transcript) Len() int {
	return len(t.messages)
}
