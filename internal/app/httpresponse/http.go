package httpresponse

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// APIError is the JSON body of every error answered by the HTTP servers.
type APIError struct {
	ErrorMessage string      `json:"error_message"`
	Details      interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.ErrorMessage
}

// WithDetails attaches a machine readable explanation, e.g. a mismatch list.
func (e *APIError) WithDetails(details interface{}) *APIError {
	e.Details = details
	return e
}

func Error(error string) *APIError {
	log.Error(error)
	return &APIError{
		ErrorMessage: error,
	}
}

func Errorf(error string, a ...interface{}) *APIError {
	return Error(fmt.Sprintf(error, a...))
}
