package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyhatharola/Oracular/internal/domain"
)

func TestNextFireInterval(t *testing.T) {
	trig := domain.Trigger{Kind: domain.TriggerInterval, IntervalSecs: 60}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextFire(trig, base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(60*time.Second), next)
}

func TestNextFireIntervalRejectsNonPositive(t *testing.T) {
	trig := domain.Trigger{Kind: domain.TriggerInterval, IntervalSecs: 0}
	_, err := NextFire(trig, time.Now())
	require.Error(t, err)
}

func TestNextFireCron(t *testing.T) {
	trig := domain.Trigger{Kind: domain.TriggerCron, CronExpr: "0 * * * *"} // top of every hour
	base := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)

	next, err := NextFire(trig, base)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), next)
}

func TestDueFiresCoalescesMultipleMissedFiresIntoOne(t *testing.T) {
	trig := domain.Trigger{Kind: domain.TriggerInterval, IntervalSecs: 60}
	lastFire := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Three fires (00:01, 00:02, 00:03) have all come and gone, and now is
	// within grace of the most recent one: exactly one due fire, two missed.
	now := lastFire.Add(3 * time.Minute)
	grace := 5 * time.Minute

	due, missed, tooOld, ok := DueFires(trig, lastFire, now, grace)
	require.True(t, ok)
	assert.Equal(t, lastFire.Add(3*time.Minute), due)
	assert.Equal(t, 2, missed)
	assert.Equal(t, 0, tooOld)
}

func TestDueFiresNoneDueYet(t *testing.T) {
	trig := domain.Trigger{Kind: domain.TriggerInterval, IntervalSecs: 60}
	lastFire := time.Now()
	now := lastFire.Add(30 * time.Second)

	_, _, _, ok := DueFires(trig, lastFire, now, 5*time.Minute)
	assert.False(t, ok)
}

func TestDueFiresReportsFiresOlderThanGraceAsTooOld(t *testing.T) {
	trig := domain.Trigger{Kind: domain.TriggerInterval, IntervalSecs: 60}
	lastFire := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Fires at +1m and +2m are older than a 30s grace window by the time
	// `now` (+2m) is reached; only the one at +2m itself is within grace.
	now := lastFire.Add(2 * time.Minute)
	grace := 30 * time.Second

	due, missed, tooOld, ok := DueFires(trig, lastFire, now, grace)
	require.True(t, ok)
	assert.Equal(t, lastFire.Add(2*time.Minute), due)
	assert.Equal(t, 0, missed)
	assert.Equal(t, 1, tooOld)
}

func TestMaintenanceWindowActiveBoundaries(t *testing.T) {
	w := domain.MaintenanceWindow{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
	}
	assert.True(t, w.Active(w.Start), "window must be active at its Start instant")
	assert.True(t, w.Active(w.End), "window must be active at its End instant")
	assert.False(t, w.Active(w.Start.Add(-time.Nanosecond)))
	assert.False(t, w.Active(w.End.Add(time.Nanosecond)))
}

func TestMaintenanceWindowAffectsAllWhenTaskListEmpty(t *testing.T) {
	w := domain.MaintenanceWindow{}
	assert.True(t, w.Affects("any-task"))
}

func TestMaintenanceWindowAffectsOnlyListedTasks(t *testing.T) {
	w := domain.MaintenanceWindow{AffectedTaskIDs: []string{"task-a"}}
	assert.True(t, w.Affects("task-a"))
	assert.False(t, w.Affects("task-b"))
}
