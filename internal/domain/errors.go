package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies every error raised by a state store
type ErrorKind string

const (
	// KindNotFound is only ever used to report a miss, stores never raise it
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindWriteFailed        ErrorKind = "WRITE_FAILED"
	KindBackendUnavailable ErrorKind = "BACKEND_UNAVAILABLE"
	KindValidationFailed   ErrorKind = "VALIDATION_FAILED"
	KindMigrationFailed    ErrorKind = "MIGRATION_FAILED"
	KindLockTimeout        ErrorKind = "LOCK_TIMEOUT"
	KindSerialization      ErrorKind = "SERIALIZATION_FAILED"
)

// Sentinel errors for use with errors.Is
var (
	// ErrNotFound is returned by lookups in the CLI layer when a record doesn't exist
	ErrNotFound = &StateError{Kind: KindNotFound}

	ErrWriteFailed        = &StateError{Kind: KindWriteFailed}
	ErrBackendUnavailable = &StateError{Kind: KindBackendUnavailable}
	ErrValidationFailed   = &StateError{Kind: KindValidationFailed}
	ErrMigrationFailed    = &StateError{Kind: KindMigrationFailed}
	ErrLockTimeout        = &StateError{Kind: KindLockTimeout}
	ErrSerialization      = &StateError{Kind: KindSerialization}
)

// StateError is the single error type surfaced by stores. Details carries the
// offending key, attempted values and nested errors for operators.
type StateError struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	Err     error
}

// NewError creates a StateError of the given kind
func NewError(kind ErrorKind, message string, err error, details map[string]any) *StateError {
	return &StateError{
		Kind:    kind,
		Message: message,
		Details: details,
		Err:     err,
	}
}

func (e *StateError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if key, ok := e.Details["key"]; ok {
		fmt.Fprintf(&b, " (key %v)", key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind, so errors.Is(err, ErrWriteFailed) works
// for any WRITE_FAILED error.
func (e *StateError) Is(target error) bool {
	t, ok := target.(*StateError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// DetailKeys returns the detail keys in sorted order
func (e *StateError) DetailKeys() []string {
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KindOf returns the kind of a StateError anywhere in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var se *StateError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// NoRecordErr is returned when a contract lookup misses and reports close matches
type NoRecordErr struct {
	ChainID     uint64
	Name        string
	Suggestions []string
}

func (e NoRecordErr) Error() string {
	msg := fmt.Sprintf("no record for %s on chain %d", e.Name, e.ChainID)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" - did you mean: %s?", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e NoRecordErr) Is(target error) bool {
	return target == ErrNotFound
}
