// Package draw computes the time remaining until the weekly lottery draw.
package draw

import (
	"context"
	"time"
	_ "time/tzdata" // draw schedule is pinned to Asia/Kolkata regardless of host zoneinfo

	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
)

// Schedule describes a weekly draw instant in a fixed location.
type Schedule struct {
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

// DefaultSchedule returns the Thursday 21:30 IST weekly draw.
func DefaultSchedule() Schedule {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// tzdata is embedded, so this only happens with a broken build.
		panic(err)
	}
	return Schedule{
		Weekday:  time.Thursday,
		Hour:     21,
		Minute:   30,
		Location: loc,
	}
}

// NewSchedule builds a Schedule for the named IANA location.
func NewSchedule(weekday time.Weekday, hour, minute int, location string) (Schedule, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Schedule{}, errors.Errorf("invalid draw time %02d:%02d", hour, minute)
	}
	loc, err := time.LoadLocation(location)
	if err != nil {
		return Schedule{}, errors.Wrapf(err, "load location %q", location)
	}
	return Schedule{Weekday: weekday, Hour: hour, Minute: minute, Location: loc}, nil
}

// Next returns the first draw instant strictly after now. A draw happening
// exactly at now is considered past.
func (s Schedule) Next(now time.Time) time.Time {
	local := now.In(s.Location)
	offset := int(s.Weekday) - int(local.Weekday())
	next := time.Date(local.Year(), local.Month(), local.Day()+offset, s.Hour, s.Minute, 0, 0, s.Location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// SecondsUntil returns the whole seconds from now to the next draw.
func (s Schedule) SecondsUntil(now time.Time) int64 {
	return int64(s.Next(now).Sub(now) / time.Second)
}

// Remaining is a countdown split into display units.
type Remaining struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
}

// Split breaks a number of seconds into days, hours, minutes and seconds.
// Negative input is treated as zero.
func Split(total int64) Remaining {
	if total < 0 {
		total = 0
	}
	return Remaining{
		Days:    total / 86400,
		Hours:   total % 86400 / 3600,
		Minutes: total % 3600 / 60,
		Seconds: total % 60,
	}
}

// Countdown re-evaluates a Schedule once per second.
type Countdown struct {
	schedule Schedule
	clock    clockwork.Clock
}

// NewCountdown creates a Countdown driven by clock.
func NewCountdown(schedule Schedule, clock clockwork.Clock) *Countdown {
	return &Countdown{schedule: schedule, clock: clock}
}

// Now returns the seconds remaining at the current clock time.
func (c *Countdown) Now() int64 {
	return c.schedule.SecondsUntil(c.clock.Now())
}

// Run calls fn immediately and then every second with the seconds remaining
// until the next draw. It blocks until ctx is cancelled and always releases
// its ticker before returning.
func (c *Countdown) Run(ctx context.Context, fn func(secondsLeft int64)) {
	fn(max(c.Now(), 0))

	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			fn(max(c.schedule.SecondsUntil(now), 0))
		}
	}
}
