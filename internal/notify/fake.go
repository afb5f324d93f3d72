package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/meal-sensor/internal/logic"
)

// FakeNotifier records delivered events for test assertions.
// It is safe for concurrent use since the Dispatcher calls it from its own goroutine.
type FakeNotifier struct {
	mu sync.Mutex

	events       []logic.Event
	systemEvents []SystemEvent

	// NotifyError, if set, is returned by Notify and PublishSystem.
	NotifyError error

	// Delay, if set, is waited (or ctx, whichever comes first) before each delivery.
	Delay time.Duration

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakeNotifier creates a FakeNotifier for testing.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{Connected: true}
}

func (f *FakeNotifier) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify records the meal event.
func (f *FakeNotifier) Notify(ctx context.Context, event logic.Event) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NotifyError != nil {
		return f.NotifyError
	}
	f.events = append(f.events, event)
	return nil
}

// PublishSystem records the system event.
func (f *FakeNotifier) PublishSystem(ctx context.Context, event SystemEvent) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NotifyError != nil {
		return f.NotifyError
	}
	f.systemEvents = append(f.systemEvents, event)
	return nil
}

// Received returns a copy of the recorded meal events.
func (f *FakeNotifier) Received() []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Event(nil), f.events...)
}

// SystemEvents returns a copy of the recorded system events.
func (f *FakeNotifier) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// IsConnected reports whether the fake is "connected".
func (f *FakeNotifier) IsConnected() bool {
	return f.Connected
}
