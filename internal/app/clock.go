package app

import "time"

// Timer is a pending one-shot callback armed through a Clock.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall-clock reads and one-shot timers so session timing can
// be driven by virtual time in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }
