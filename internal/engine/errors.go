package engine

import "errors"

// ErrStopped is returned by Apply when the engine stopped before the
// mutation was applied.
var ErrStopped = errors.New("engine stopped")

// IsStopped reports whether err is or wraps ErrStopped.
func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}
