package control

import (
	"fmt"
	"strings"
)

const (
	WaitToken  = "<WAIT>"
	SleepToken = "<SLEEP>"

	legacySleepWord = "SLEEP"
)

type Signal int

const (
	SignalNone Signal = iota
	SignalWait
	SignalSleep
)

func (s Signal) String() string {
	switch s {
	case SignalWait:
		return "wait"
	case SignalSleep:
		return "sleep"
	default:
		return "none"
	}
}

type Mode string

const (
	// ModeExact matches the bracketed tokens only.
	ModeExact Mode = "exact"
	// ModeSubstring stops the session on any occurrence of SLEEP in the reply.
	ModeSubstring Mode = "substring"
)

type Detector struct {
	mode Mode
}

func NewDetector(mode Mode) (*Detector, error) {
	switch mode {
	case ModeExact, ModeSubstring:
	default:
		return nil, fmt.Errorf("unknown token match mode %q", mode)
	}

	return &Detector{mode: mode}, nil
}

func (d *Detector) Mode() Mode {
	return d.mode
}

func (d *Detector) Detect(content string) Signal {
	if d.isSleep(content) {
		return SignalSleep
	}

	if d.isWait(content) {
		return SignalWait
	}

	return SignalNone
}

func (d *Detector) isSleep(content string) bool {
	if d.mode == ModeSubstring {
		return strings.Contains(content, legacySleepWord)
	}

	return strings.Contains(content, SleepToken)
}

func (d *Detector) isWait(content string) bool {
	if d.mode == ModeSubstring {
		return content == WaitToken
	}

	return strings.TrimSpace(content) == WaitToken
}
