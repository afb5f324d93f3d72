package notify

import (
	"context"
	"errors"

	"github.com/sweeney/meal-sensor/internal/logic"
)

// Multi fans an event out to every notifier in order.
// A failing notifier does not stop the rest; all errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event logic.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
