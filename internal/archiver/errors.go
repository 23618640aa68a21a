package archiver

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a caller precondition violated before any
	// store interaction.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSchemaMismatch reports a declared output shape that cannot hold
	// the archiver tuple.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrInvalidHost is wrapped in a RepositoryError when Add receives an
	// empty or unusable node host.
	ErrInvalidHost = errors.New("node host must be a non-empty string")
)

// Statement kinds reported in RepositoryError.Op.
const (
	OpSelect = "select from"
	OpInsert = "insert into"
	OpDelete = "delete from"
)

// RepositoryError is returned when the store could not run a statement or a
// post-condition the repository relies on did not hold. It is never retried.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("could not %s archiver: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// IsRepositoryError reports whether err carries a *RepositoryError.
func IsRepositoryError(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re)
}
