package motor

import "github.com/sweeney/meal-sensor/internal/haptic"

// FakeDriver records applied commands for test assertions.
type FakeDriver struct {
	// Commands contains every command that was applied successfully.
	Commands []haptic.Command

	// ApplyError, if set, will be returned by Apply.
	ApplyError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver for testing.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// Apply records the command.
func (f *FakeDriver) Apply(cmd haptic.Command) error {
	if f.ApplyError != nil {
		return f.ApplyError
	}
	f.Commands = append(f.Commands, cmd)
	return nil
}

// Last returns the most recent command, or the zero command if none was applied.
func (f *FakeDriver) Last() haptic.Command {
	if len(f.Commands) == 0 {
		return haptic.Command{}
	}
	return f.Commands[len(f.Commands)-1]
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded commands.
func (f *FakeDriver) Reset() {
	f.Commands = nil
	f.ApplyError = nil
	f.Closed = false
}
