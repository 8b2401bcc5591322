package engine

import (
	"errors"
	"fmt"
)

// CommandErrorCode categorizes command failures.
type CommandErrorCode string

const (
	// ErrCodeNotLoaded: a command needing a world arrived before LoadRules.
	ErrCodeNotLoaded CommandErrorCode = "NOT_LOADED"

	// ErrCodeUnknownLocation: the named location does not exist in the world.
	ErrCodeUnknownLocation CommandErrorCode = "UNKNOWN_LOCATION"

	// ErrCodeUnreachableLocation: CheckLocation targeted a location the
	// sweep reports as not currently reachable. This is a consistency
	// violation, never silently accepted.
	ErrCodeUnreachableLocation CommandErrorCode = "UNREACHABLE_LOCATION"

	// ErrCodePingTimeout: the caller's wait for a ping barrier expired.
	ErrCodePingTimeout CommandErrorCode = "PING_TIMEOUT"

	// ErrCodeStopped: the command was submitted after the engine stopped.
	ErrCodeStopped CommandErrorCode = "ENGINE_STOPPED"
)

// CommandError is a command failure with enough context to diagnose a
// consistency violation offline: which location, its region, and the
// inventory the sweep ran against.
type CommandError struct {
	Code     CommandErrorCode
	Message  string
	Command  string
	Location string
	Region   string

	// Inventory is the inventory at the time of failure, populated for
	// unreachable-location violations.
	Inventory map[string]int

	// Err is the underlying cause, if any.
	Err error
}

func (e *CommandError) Error() string {
	switch {
	case e.Location != "" && e.Region != "":
		return fmt.Sprintf("%s: %s (command=%s, location=%q, region=%q)",
			e.Code, e.Message, e.Command, e.Location, e.Region)
	case e.Location != "":
		return fmt.Sprintf("%s: %s (command=%s, location=%q)",
			e.Code, e.Message, e.Command, e.Location)
	default:
		return fmt.Sprintf("%s: %s (command=%s)", e.Code, e.Message, e.Command)
	}
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrorCode extracts the command error code from a possibly wrapped error,
// or "" when the error is not a CommandError.
func ErrorCode(err error) CommandErrorCode {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsUnreachable reports whether the error is an unreachable-location
// consistency violation.
func IsUnreachable(err error) bool {
	return ErrorCode(err) == ErrCodeUnreachableLocation
}

func notLoadedError(cmd string) *CommandError {
	return &CommandError{
		Code:    ErrCodeNotLoaded,
		Message: "no world loaded",
		Command: cmd,
	}
}
