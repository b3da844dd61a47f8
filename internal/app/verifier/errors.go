package verifier

import (
	"fmt"

	"github.com/pkg/errors"
)

var errNoStateHandler = errors.New("no handler registered")

// StateSetupError is recorded for an interaction whose provider state could
// not be set up. The interaction's request is not sent.
type StateSetupError struct {
	State string
	Err   error
}

func (e *StateSetupError) Error() string {
	return fmt.Sprintf("provider state %q: %s", e.State, e.Err)
}

func (e *StateSetupError) Unwrap() error {
	return e.Err
}

// TransportError is recorded when the provider could not be reached or did
// not answer within the timeout.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
