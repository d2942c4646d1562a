package clock

import "time"

// Clock allows deterministic time behavior in tests. Age-based checks and
// audit timestamps both observe time only through this interface.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time {
	return f.T
}
