package consult

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDataFound is returned when a lookup succeeds but carries no records.
	ErrNoDataFound = errors.New("no data found")
	// ErrTimedOut is returned when a call exceeds the configured request timeout.
	ErrTimedOut = errors.New("request timed out")
)

// FetchError reports a failed call to the consultation service. Status is
// zero when the request never produced an HTTP response.
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": failed"
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is or wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
