package core

import "time"

// Clock supplies the current unix time in seconds.
type Clock interface {
	Now() uint32
}

type SystemClock struct{}

func (SystemClock) Now() uint32 {
	return uint32(time.Now().Unix())
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint32

func (f ClockFunc) Now() uint32 {
	return f()
}
