package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newDetector(t *testing.T) *MealDetector {
	t.Helper()
	d, err := NewMealDetector(DefaultThresholds(), t0)
	require.NoError(t, err)
	return d
}

func TestNewMealDetector(t *testing.T) {
	d := newDetector(t)
	assert.Equal(t, StateIdle, d.CurrentState())
	assert.Equal(t, EventCounts{}, d.EventCountsSnapshot())
	assert.Equal(t, Thresholds{Low: 2000, High: 3000}, d.Thresholds())
}

func TestNewMealDetectorRejectsInvertedThresholds(t *testing.T) {
	_, err := NewMealDetector(Thresholds{Low: 3000, High: 3000}, t0)
	assert.Error(t, err)

	_, err = NewMealDetector(Thresholds{Low: 3500, High: 3000}, t0)
	assert.Error(t, err)
}

func TestUpdateStartsMealOnce(t *testing.T) {
	d := newDetector(t)

	e := d.Update(3000, t0)
	require.NotNil(t, e)
	assert.Equal(t, EventMealStarted, e.Type)
	assert.Equal(t, 3000, e.Reading)
	assert.True(t, e.Timestamp.Equal(t0))
	assert.Equal(t, StateInMeal, d.CurrentState())

	// Same reading again is inert while in the meal.
	for i := 0; i < 10; i++ {
		assert.Nil(t, d.Update(3000, t0.Add(time.Duration(i)*time.Millisecond)))
	}
	assert.Equal(t, 1, d.EventCountsSnapshot().MealStarted)
}

func TestUpdateBelowHighStaysIdle(t *testing.T) {
	d := newDetector(t)
	assert.Nil(t, d.Update(2999, t0))
	assert.Nil(t, d.Update(0, t0))
	assert.Equal(t, StateIdle, d.CurrentState())
}

func TestHysteresisBandIsInert(t *testing.T) {
	for _, start := range []MealState{StateIdle, StateInMeal} {
		t.Run(string(start), func(t *testing.T) {
			d := newDetector(t)
			if start == StateInMeal {
				require.NotNil(t, d.Update(4095, t0))
			}
			for r := 2000; r < 3000; r++ {
				require.Nil(t, d.Update(r, t0), "reading %d", r)
				require.Equal(t, start, d.CurrentState(), "reading %d", r)
			}
		})
	}
}

func TestEndRequiresStrictlyBelowLow(t *testing.T) {
	d := newDetector(t)
	require.NotNil(t, d.Update(3500, t0))

	assert.Nil(t, d.Update(2000, t0))
	e := d.Update(1999, t0)
	require.NotNil(t, e)
	assert.Equal(t, EventMealEnded, e.Type)
	assert.Equal(t, StateIdle, d.CurrentState())
}

func TestFullCycleEmitsStartThenEnd(t *testing.T) {
	d := newDetector(t)

	var events []EventType
	for i, r := range []int{1500, 3500, 3500, 2500, 1500, 1500} {
		if e := d.Update(r, t0.Add(time.Duration(i)*time.Second)); e != nil {
			events = append(events, e.Type)
		}
	}

	assert.Equal(t, []EventType{EventMealStarted, EventMealEnded}, events)
	assert.Equal(t, EventCounts{MealStarted: 1, MealEnded: 1}, d.EventCountsSnapshot())
}

func TestNoisyReadingDoesNotChatter(t *testing.T) {
	d := newDetector(t)
	require.NotNil(t, d.Update(3100, t0))

	// Noise around the high threshold never ends the meal.
	for i := 0; i < 100; i++ {
		r := 2990
		if i%2 == 0 {
			r = 3010
		}
		assert.Nil(t, d.Update(r, t0))
	}
	assert.Equal(t, 1, d.EventCountsSnapshot().MealStarted)
	assert.Equal(t, 0, d.EventCountsSnapshot().MealEnded)
}

func TestCheckHeartbeat(t *testing.T) {
	d := newDetector(t)

	assert.Nil(t, d.CheckHeartbeat(t0.Add(time.Hour), 0), "disabled heartbeat")
	assert.Nil(t, d.CheckHeartbeat(t0.Add(14*time.Minute), 15*time.Minute))

	d.Update(3500, t0.Add(time.Minute))

	hb := d.CheckHeartbeat(t0.Add(15*time.Minute), 15*time.Minute)
	require.NotNil(t, hb)
	assert.Equal(t, 15*time.Minute, hb.Uptime)
	assert.Equal(t, 1, hb.Counts.MealStarted)

	assert.Nil(t, d.CheckHeartbeat(t0.Add(20*time.Minute), 15*time.Minute), "interval restarts after a heartbeat")

	hb = d.CheckHeartbeat(t0.Add(30*time.Minute), 15*time.Minute)
	require.NotNil(t, hb)
	assert.Equal(t, 30*time.Minute, hb.Uptime)
}
