// Package conversation holds the chat history of an execution session.
package conversation

import "sync"

// Role identifies the author of a turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Greeting is the assistant turn a new session opens with.
const Greeting = "Workflow is connected and ready. How can I help you today?"

// Turn is one message of the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User creates a user turn.
func User(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// Assistant creates an assistant turn.
func Assistant(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Conversation is an ordered, append-only list of turns.
// Past turns are never edited or removed; Reset is the only way to start
// over. Safe for concurrent use.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// New creates a conversation holding the given turns.
func New(initial ...Turn) *Conversation {
	turns := make([]Turn, len(initial))
	copy(turns, initial)
	return &Conversation{turns: turns}
}

// NewWithGreeting creates a conversation that opens with Greeting.
func NewWithGreeting() *Conversation {
	return New(Assistant(Greeting))
}

// Append adds a turn and returns the new length.
func (c *Conversation) Append(t Turn) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
	return len(c.turns)
}

// Turns returns a copy of the turns in order.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Last returns the most recent turn.
func (c *Conversation) Last() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// Reset discards every turn and starts again from initial.
func (c *Conversation) Reset(initial ...Turn) {
	turns := make([]Turn, len(initial))
	copy(turns, initial)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = turns
}
