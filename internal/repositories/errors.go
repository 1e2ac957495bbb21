package repositories

import "fmt"

// StoreError is a RepositoryError for backends that do not carry their own error taxonomy.
type StoreError struct {
	Op          string
	Message     string
	NotFound    bool
	Conflict    bool
	Unavailable bool
	Err         error
}

var _ RepositoryError = (*StoreError)(nil)

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.NotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Conflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Unavailable }

// NewNotFoundError reports a missing record.
func NewNotFoundError(op, message string) *StoreError {
	return &StoreError{Op: op, Message: message, NotFound: true}
}

// NewUnavailableError reports a backend outage.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, Unavailable: true}
}
