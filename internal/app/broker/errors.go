package broker

import (
	"fmt"
)

// PublishConflictError is returned when the broker already holds different
// content for the consumer version.
type PublishConflictError struct {
	Consumer        string
	Provider        string
	ConsumerVersion string
	Message         string
}

func (e *PublishConflictError) Error() string {
	return fmt.Sprintf("broker rejected pact %s -> %s version %s: %s", e.Consumer, e.Provider, e.ConsumerVersion, e.Message)
}

// TransportError means the broker could not be reached. For a publish it
// must not be read as success: the pact may or may not have been stored.
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

// StatusError is any other non 2xx broker answer.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: broker answered %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}
