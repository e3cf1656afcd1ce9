package schedule

import "errors"

var (
	ErrParse       = errors.New("parse error")
	ErrSchema      = errors.New("schema error")
	ErrVersion     = errors.New("version error")
	ErrSafetyLimit = errors.New("safety limit error")
	ErrExecution   = errors.New("execution error")
)

// ProtocolError carries a human readable reason together with its category.
// Error() returns the reason only, so it can be copied into error_reason.
type ProtocolError struct {
	Kind   error
	Reason string
}

func NewProtocolError(kind error, reason string) *ProtocolError {
	return &ProtocolError{Kind: kind, Reason: reason}
}

func (e *ProtocolError) Error() string { return e.Reason }

func (e *ProtocolError) Unwrap() error { return e.Kind }
