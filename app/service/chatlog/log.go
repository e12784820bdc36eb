package chatlog

import "sync"

// Log is the ordered conversation sent to the model on every tick.
// It only grows, except for TrimLastAndAppend which swaps the newest entry.
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

func NewLog(initial ...Message) *Log {
	messages := make([]Message, len(initial))
	copy(messages, initial)

	return &Log{
		messages: messages,
	}
}

func (l *Log) Append(messages ...Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, messages...)
}

// TrimLastAndAppend replaces the newest entry with msg.
// The first entry holds the preamble and is never removed.
func (l *Log) TrimLastAndAppend(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.messages) > 1 {
		l.messages = l.messages[:len(l.messages)-1]
	}

	l.messages = append(l.messages, msg)
}

func (l *Log) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Message, len(l.messages))
	copy(result, l.messages)

	return result
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.messages)
}

func (l *Log) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.messages) == 0 {
		return Message{}, false
	}

	return l.messages[len(l.messages)-1], true
}
