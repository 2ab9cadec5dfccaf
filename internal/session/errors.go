package session

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Manager operation matches exactly
// one of them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrService          = errors.New("service error")
	ErrStorage          = errors.New("storage error")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoFamily         = errors.New("no current family")
)

// Error carries the message shown to the user alongside its kind and cause
type Error struct {
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage returns the text stored in State.Error for err
func UserMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

func notFound(op, msg string) error {
	return &Error{Op: op, Kind: ErrNotFound, Message: msg}
}

func serviceError(op, msg string, err error) error {
	return &Error{Op: op, Kind: ErrService, Message: msg, Err: err}
}

func storageError(op string, err error) error {
	return &Error{Op: op, Kind: ErrStorage, Message: "Failed to save session on this device", Err: err}
}

func notAuthenticated(op string) error {
	return &Error{Op: op, Kind: ErrNotAuthenticated, Message: "You need to log in first"}
}

func noFamily(op string) error {
	return &Error{Op: op, Kind: ErrNoFamily, Message: "Join or create a family first"}
}
