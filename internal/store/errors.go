package store

import "errors"

// Errors returned by Open and the transaction helpers.
var (
	// ErrNewerSchema is returned when the file was written by a newer
	// schema than the caller knows how to read.
	ErrNewerSchema = errors.New("database schema is newer than supported")

	// ErrClosed is returned when the store is used after Close.
	ErrClosed = errors.New("database is closed")

	// ErrNoTables is returned when Open is given nothing to manage.
	ErrNoTables = errors.New("no tables registered")
)

// IsSchemaError reports whether err came from bringing the schema up to
// date, as opposed to a plain I/O failure.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se) || errors.Is(err, ErrNewerSchema)
}

// SchemaError wraps a failure while creating, upgrading or verifying a table.
type SchemaError struct {
	Table string
	Op    string
	From  int
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Op == "upgrade" {
		return "failed to upgrade table " + e.Table + " from version " + itoa(e.From) + ": " + e.Err.Error()
	}
	return "failed to " + e.Op + " table " + e.Table + ": " + e.Err.Error()
}

func (e *SchemaError) Unwrap() error { return e.Err }
