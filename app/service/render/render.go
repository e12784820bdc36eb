// Package render turns the message log into what the widget shows.
package render

import (
	"pollchat/app/service/chatlog"
	"pollchat/app/service/control"

	"github.com/elliotchance/pie/v2"
)

const SessionEndedText = "Session ended"

type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindSleep     Kind = "sleep"
)

type Entry struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Render hides system entries and wait replies, and collapses sleep replies
// into a single session-ended marker.
func Render(messages []chatlog.Message, detector *control.Detector) []Entry {
	visible := pie.Filter(messages, func(m chatlog.Message) bool {
		if m.Role == chatlog.RoleSystem {
			return false
		}

		return m.Role != chatlog.RoleAssistant || detector.Detect(m.Content) != control.SignalWait
	})

	return pie.Map(visible, func(m chatlog.Message) Entry {
		if m.Role == chatlog.RoleUser {
			return Entry{Kind: KindUser, Text: m.Content}
		}

		if detector.Detect(m.Content) == control.SignalSleep {
			return Entry{Kind: KindSleep, Text: SessionEndedText}
		}

		return Entry{Kind: KindAssistant, Text: m.Content}
	})
}
