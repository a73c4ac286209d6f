package hubspot

import "fmt"

// StatusError is a HubSpot call that completed at the transport level
// but answered with a non-success status. Callers that tolerate partial
// data match it through the HTTPStatus method.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hubspot %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }
