package domain

import (
	"errors"
	"time"
)

type ScheduleID string

// Schedule is a recurring airing slot. The core writes lastRun and nextRun
// only; everything else is admin CRUD.
type Schedule struct {
	ID        ScheduleID `json:"id"`
	Name      string     `json:"name"`
	CronExpr  string     `json:"cronExpr"`
	Volume    int        `json:"volume"`
	SongCount int        `json:"songCount"`
	Active    bool       `json:"active"`
	LastRun   time.Time  `json:"lastRun,omitempty"`
	NextRun   time.Time  `json:"nextRun,omitempty"`
}

// Validate checks the admin CRUD boundary invariants. Cron syntax is
// validated separately by the scheduler, which owns the dialect.
func (s Schedule) Validate() error {
	if s.Name == "" {
		return errors.New("schedule name is required")
	}
	if s.CronExpr == "" {
		return errors.New("cron expression is required")
	}
	if s.Volume < 0 || s.Volume > 100 {
		return errors.New("volume must be within [0,100]")
	}
	if s.SongCount < 1 || s.SongCount > 10 {
		return errors.New("songCount must be within [1,10]")
	}
	return nil
}
