// Package collector is the receiving end of meal notifications: it keeps the
// current meal status and serves it over HTTP.
package collector

import (
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/sweeney/meal-sensor/internal/logic"
	"github.com/sweeney/meal-sensor/internal/metrics"
)

var log = log15.New("pkg", "collector")

// recentIDs bounds the replay de-duplication window.
const recentIDs = 64

// Snapshot is the collector state at one instant.
type Snapshot struct {
	Status    logic.MealState
	StartTime time.Time // zero when no meal has started since the last reset
	EndTime   time.Time // zero until the meal ends
	Duration  time.Duration
	Overdue   bool // idle for longer than the alert window
	Meals     int  // completed meals since startup
}

// Store holds the meal status. It is safe for concurrent use.
type Store struct {
	alertAfter time.Duration

	mu      sync.RWMutex
	state   logic.MealState
	start   time.Time
	end     time.Time
	waiting time.Time // start of the current idle period
	meals   int
	seen    map[string]struct{}
	order   []string
}

// NewStore creates an idle store. alertAfter <= 0 disables the overdue flag.
func NewStore(alertAfter time.Duration, now time.Time) *Store {
	return &Store{
		alertAfter: alertAfter,
		state:      logic.StateIdle,
		waiting:    now,
		seen:       make(map[string]struct{}),
	}
}

// Start records a meal start at the given time. A start during a meal restarts it.
func (s *Store) Start(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = logic.StateInMeal
	s.start = at
	s.end = time.Time{}
	metrics.CollectorInMeal.Set(1)
}

// End records a meal end. Without a recorded start the duration stays zero.
func (s *Store) End(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == logic.StateInMeal {
		s.meals++
	}
	s.state = logic.StateIdle
	s.end = at
	s.waiting = at
	metrics.CollectorInMeal.Set(0)
}

// Reset clears the meal times and restarts the alert window.
func (s *Store) Reset(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = logic.StateIdle
	s.start = time.Time{}
	s.end = time.Time{}
	s.waiting = at
	metrics.CollectorInMeal.Set(0)
}

// Snapshot returns the status as of now. During a meal Duration is the time eaten so far.
func (s *Store) Snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Status:    s.state,
		StartTime: s.start,
		EndTime:   s.end,
		Meals:     s.meals,
	}
	switch {
	case s.start.IsZero():
	case s.state == logic.StateInMeal:
		snap.Duration = now.Sub(s.start)
	case !s.end.IsZero() && s.end.After(s.start):
		snap.Duration = s.end.Sub(s.start)
	}
	if s.state == logic.StateIdle && s.alertAfter > 0 {
		snap.Overdue = now.Sub(s.waiting) > s.alertAfter
	}
	return snap
}

// markSeen reports whether id is new and remembers it.
// Empty ids are always new.
func (s *Store) markSeen(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > recentIDs {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	return true
}
