// Package scheduler evaluates task triggers, enforces maintenance windows
// and per-task concurrency, and drives TaskExecution through its retry
// state machine (spec §4.5).
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/greyhatharola/Oracular/internal/domain"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// NextFire computes a trigger's next fire time strictly after `after`.
func NextFire(t domain.Trigger, after time.Time) (time.Time, error) {
	switch t.Kind {
	case domain.TriggerCron:
		sched, err := cronParser.Parse(t.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", t.CronExpr, err)
		}
		return sched.Next(after), nil
	case domain.TriggerInterval:
		if t.IntervalSecs <= 0 {
			return time.Time{}, fmt.Errorf("interval trigger requires a positive interval_secs")
		}
		return after.Add(time.Duration(t.IntervalSecs) * time.Second), nil
	default:
		return time.Time{}, fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
}

// DueFires walks a trigger's fire times strictly after `lastFire` up to
// `now`, coalescing every fire that falls within `now - grace` into a
// single due fire. Returns (dueFire, missed, tooOld, ok): ok is false when
// no fire within the grace window is due; missed counts fires that were
// within the grace window but folded into the single returned dueFire;
// tooOld counts fires older than the grace window, which are reported but
// not re-executed (spec §4.5, §8 "Scheduler coalescing").
func DueFires(t domain.Trigger, lastFire, now time.Time, grace time.Duration) (due time.Time, missed int, tooOld int, ok bool) {
	cursor := lastFire
	var lastWithinGrace time.Time
	haveWithinGrace := false

	for i := 0; i < maxFireLookups; i++ {
		next, err := NextFire(t, cursor)
		if err != nil || next.After(now) {
			break
		}
		cursor = next

		if now.Sub(next) <= grace {
			if haveWithinGrace {
				missed++
			}
			lastWithinGrace = next
			haveWithinGrace = true
		} else {
			tooOld++
		}
	}

	if !haveWithinGrace {
		return time.Time{}, missed, tooOld, false
	}
	return lastWithinGrace, missed, tooOld, true
}

// maxFireLookups bounds the walk in DueFires so a misconfigured trigger
// (e.g. a sub-second interval left unattended for a long outage) cannot
// spin indefinitely.
const maxFireLookups = 100000
