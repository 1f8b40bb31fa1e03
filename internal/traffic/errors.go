package traffic

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	// KindTransport covers unreachable hosts, timeouts, open circuits and
	// non-success HTTP statuses.
	KindTransport ErrorKind = "transport"
	// KindProtocol covers response bodies that cannot be decoded.
	KindProtocol ErrorKind = "protocol"
	// KindRejected is a well-formed response reporting success=false.
	KindRejected ErrorKind = "rejected"
)

// BackendError is returned by Backend implementations for every failed call.
type BackendError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	// Message is the backend's own explanation, if it gave one.
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: status %d %s", e.Op, e.Kind, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

// TransportError builds a transport-kind BackendError.
func TransportError(op string, status int, err error) *BackendError {
	return &BackendError{Kind: KindTransport, Op: op, StatusCode: status, Err: err}
}

// ProtocolError builds a protocol-kind BackendError.
func ProtocolError(op string, err error) *BackendError {
	return &BackendError{Kind: KindProtocol, Op: op, Err: err}
}

// RejectedError builds a rejected-kind BackendError carrying the backend's message.
func RejectedError(op, message string) *BackendError {
	return &BackendError{Kind: KindRejected, Op: op, Message: message}
}
