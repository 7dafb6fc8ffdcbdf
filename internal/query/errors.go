package query

import (
	"errors"
	"fmt"
)

// InvalidArgumentError reports a request value that fails validation before
// any SQL is generated: a zero limit, an unknown sort direction, a malformed
// identifier, a bad pagination block and so on.
type InvalidArgumentError struct {
	Field  string // offending field or argument name, may be empty
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
	}
	return "invalid argument: " + e.Reason
}

// UnsupportedOperatorError reports a filter operator key the builder does not
// recognize. The key is preserved verbatim so callers can surface it.
type UnsupportedOperatorError struct {
	Field    string
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %q for field %q", e.Operator, e.Field)
}

// UnknownTableError reports a query against a table that was never
// registered with the service.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q", e.Table)
}

// UnknownColumnError reports a request referencing a column that does not
// exist on the registered table.
type UnknownColumnError struct {
	Table  string
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q on table %q", e.Column, e.Table)
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}

// IsUnsupportedOperator reports whether err is an UnsupportedOperatorError.
func IsUnsupportedOperator(err error) bool {
	var target *UnsupportedOperatorError
	return errors.As(err, &target)
}

// IsUnknownTable reports whether err is an UnknownTableError.
func IsUnknownTable(err error) bool {
	var target *UnknownTableError
	return errors.As(err, &target)
}

// IsUnknownColumn reports whether err is an UnknownColumnError.
func IsUnknownColumn(err error) bool {
	var target *UnknownColumnError
	return errors.As(err, &target)
}

// invalidArgf builds an InvalidArgumentError with a formatted reason.
func invalidArgf(field, format string, args ...any) *InvalidArgumentError {
	return &InvalidArgumentError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
