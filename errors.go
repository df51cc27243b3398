package mongocheck

import "github.com/pkg/errors"

// The check distinguishes four failure classes. Configuration and query
// execution problems abort only the feature that raised them; connection
// and type mismatch problems abort the whole cycle.

type configurationError struct{ err error }

func (e *configurationError) Error() string { return e.err.Error() }
func (e *configurationError) Cause() error  { return e.err }

func newConfigurationError(err error) error {
	if err == nil {
		return nil
	}
	return &configurationError{err: err}
}

// IsConfigurationError reports whether err came from validating user
// supplied settings, seeing through pkg/errors wrapping.
func IsConfigurationError(err error) bool {
	_, ok := errors.Cause(err).(*configurationError)
	return ok
}

type connectionError struct{ err error }

func (e *connectionError) Error() string { return e.err.Error() }
func (e *connectionError) Cause() error  { return e.err }

func newConnectionError(err error) error {
	if err == nil {
		return nil
	}
	return &connectionError{err: err}
}

// IsConnectionError reports whether err indicates the server could not
// be reached or authenticated to. These errors fail the cycle and are
// reported as a critical connectivity service check.
func IsConnectionError(err error) bool {
	_, ok := errors.Cause(err).(*connectionError)
	return ok
}

type typeMismatchError struct{ err error }

func (e *typeMismatchError) Error() string { return e.err.Error() }
func (e *typeMismatchError) Cause() error  { return e.err }

func newTypeMismatchError(path string, value interface{}) error {
	return &typeMismatchError{err: errors.Errorf(
		"%s value is a %T, it should be an integer or a float", path, value)}
}

// IsTypeMismatchError reports whether err was raised because a
// cataloged field was present in a status document but held a
// non-numeric value. Unlike a missing field, this indicates schema
// drift and fails the cycle.
func IsTypeMismatchError(err error) bool {
	_, ok := errors.Cause(err).(*typeMismatchError)
	return ok
}

type queryExecutionError struct{ err error }

func (e *queryExecutionError) Error() string { return e.err.Error() }
func (e *queryExecutionError) Cause() error  { return e.err }

func newQueryExecutionError(err error) error {
	if err == nil {
		return nil
	}
	return &queryExecutionError{err: err}
}

// IsQueryExecutionError reports whether err came from the server
// rejecting a command. These abort only the feature that issued the
// command, never the whole cycle.
func IsQueryExecutionError(err error) bool {
	_, ok := errors.Cause(err).(*queryExecutionError)
	return ok
}
