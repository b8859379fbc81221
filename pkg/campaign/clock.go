package campaign

import "time"

// Clock abstracts wall-clock time so engines can be driven through
// time-dependent scenarios in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func SystemClock() Clock {
	return systemClock{}
}
