package chatlog

import (
	"fmt"
	"strings"
	"time"
)

const timePrefix = "Time: "

// Annotator stamps system messages with the seconds elapsed since a fixed start instant.
type Annotator struct {
	start time.Time
	now   func() time.Time
}

func NewAnnotator(start time.Time, now func() time.Time) *Annotator {
	if now == nil {
		now = time.Now
	}

	return &Annotator{
		start: start,
		now:   now,
	}
}

func (a *Annotator) Elapsed() int {
	return int(a.now().Sub(a.start) / time.Second)
}

func (a *Annotator) Now() Message {
	return System(fmt.Sprintf("%s%d", timePrefix, a.Elapsed()))
}

func IsTimestamp(msg Message) bool {
	return msg.Role == RoleSystem && strings.HasPrefix(msg.Content, timePrefix)
}
