// Package system provides the wall clock behind task and artifact
// timestamps.
package system

import "time"

// Clock yields UTC wall-clock time. Task ordering and history pagination
// compare these timestamps in Postgres, so everything is normalized to UTC
// at the source.
type Clock struct{}

// New returns the process wall clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
