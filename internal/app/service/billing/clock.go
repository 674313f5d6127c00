package billing

import "time"

// Clock abstracts "now" so the scheduler and escalation logic stay
// deterministic under test.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func NewClock() Clock { return realClock{} }
