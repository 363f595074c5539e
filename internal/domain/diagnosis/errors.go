package diagnosis

import (
	"errors"
	"fmt"
)

// The first three are classifier failures that select the fallback; the
// rest come from the record store and lifecycle.
var (
	ErrNetwork          = errors.New("classifier unreachable")
	ErrServer           = errors.New("classifier returned an error status")
	ErrParse            = errors.New("malformed classification document")
	ErrStorage          = errors.New("record storage failure")
	ErrNotFound         = errors.New("record not found")
	ErrInvalidDiagnosis = errors.New("invalid definitive diagnosis")
)

// ServerError carries the status code of a non-2xx classifier response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrServer, e.StatusCode)
}

func (e *ServerError) Unwrap() error { return ErrServer }
