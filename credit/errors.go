package credit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig fails a single request; other computations are unaffected.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput is returned before any computation starts.
	ErrInvalidInput = errors.New("invalid input")

	ErrUnknownGrade    = fmt.Errorf("%w: unknown rating grade", ErrInvalidConfig)
	ErrUnknownScenario = fmt.Errorf("%w: unknown scenario", ErrInvalidConfig)
)

// IntegrityWarning describes a record that was skipped because it references
// something missing or carries a value the engine cannot use.
type IntegrityWarning struct {
	Entity string `json:"entity"`
	ID     int64  `json:"id"`
	Ref    int64  `json:"ref,omitempty"`
	Msg    string `json:"msg"`
}

func (w IntegrityWarning) String() string {
	if w.Ref != 0 {
		return fmt.Sprintf("%s %d (ref %d): %s", w.Entity, w.ID, w.Ref, w.Msg)
	}
	return fmt.Sprintf("%s %d: %s", w.Entity, w.ID, w.Msg)
}

// InvalidInput wraps ErrInvalidInput with a formatted reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// CheckAsOf rejects a missing as-of date or one later than the clock the data
// was read at. A zero clock disables the second check.
func CheckAsOf(asOf, clock time.Time) error {
	if asOf.IsZero() {
		return InvalidInput("as-of date is required")
	}
	if !clock.IsZero() && asOf.After(clock) {
		return InvalidInput("as-of %s is after the data clock %s",
			asOf.Format(time.DateOnly), clock.Format(time.RFC3339))
	}
	return nil
}
