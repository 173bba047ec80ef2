package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule adapts a standard five-field cron expression to Schedule.
// Descriptors such as "@daily" and "@every 6h" and a leading "CRON_TZ=" are
// accepted as well.
type CronSchedule struct {
	spec     string
	schedule cron.Schedule
}

// ParseCron parses spec with the standard cron parser.
func ParseCron(spec string) (*CronSchedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", spec, err)
	}
	return &CronSchedule{spec: spec, schedule: s}, nil
}

// MustParseCron is ParseCron for compile-time constants.
func MustParseCron(spec string) *CronSchedule {
	s, err := ParseCron(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// Next returns the first activation strictly after t.
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

func (c *CronSchedule) String() string {
	return c.spec
}

// IntervalSchedule runs a job at a fixed interval from its previous start.
// Unlike "@every" it keeps sub-second precision.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every returns an IntervalSchedule.
func Every(d time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: d}
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}
