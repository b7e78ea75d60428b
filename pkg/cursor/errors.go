package cursor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/umputun/rowbatch/pkg/backend"
)

// cursor misuse errors
var (
	ErrCursorUnavailable = errors.New("cursor unavailable")
	ErrNoActiveResultSet = errors.New("no active result set, nothing to fetch")
	ErrInvalidBatchSize  = errors.New("row batch size must be an integer > 0")
	ErrOutOfRange        = errors.New("out of range")
	ErrRowFailed         = errors.New("row failed to fetch")
)

// ErrorClass groups backend failures the way callers usually react to them.
type ErrorClass int

// error classes
const (
	ClassDatabase    ErrorClass = iota // anything not classified below
	ClassProgramming                   // SQLSTATE class 42: syntax errors, missing objects
	ClassData                          // SQLSTATE class 22: data exceptions
)

func (c ErrorClass) String() string {
	switch c {
	case ClassProgramming:
		return "programming error"
	case ClassData:
		return "data error"
	}
	return "database error"
}

// BackendError is a failed backend call. Diag is nil if the backend had no diagnostic record for it.
type BackendError struct {
	Op     string
	Return backend.Return
	Diag   *backend.DiagRecord
}

func (e *BackendError) Error() string {
	if e.Diag == nil {
		return fmt.Sprintf("%s failed (%s), no diagnostic available", e.Op, e.Return)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Diag)
}

// Class derives the error class from the SQLSTATE.
func (e *BackendError) Class() ErrorClass {
	if e.Diag == nil {
		return ClassDatabase
	}
	switch {
	case strings.HasPrefix(e.Diag.State, "42"):
		return ClassProgramming
	case strings.HasPrefix(e.Diag.State, "22"):
		return ClassData
	}
	return ClassDatabase
}

// NameTruncatedError is a describe warning: the column name was longer than the capture buffer.
type NameTruncatedError struct {
	Ordinal  int
	Name     string // the name as captured
	Length   int    // the full length reported by the backend
	Capacity int
}

func (e *NameTruncatedError) Error() string {
	return fmt.Sprintf("column %d name truncated to %d of %d bytes: %q", e.Ordinal, e.Capacity, e.Length, e.Name)
}

// RowError is returned for a row of the last batch the backend reported as failed. Diag is the
// backend record for that row, nil if the backend gave none.
type RowError struct {
	Row  int
	Diag *backend.DiagRecord
}

func (e *RowError) Error() string {
	if e.Diag == nil {
		return fmt.Sprintf("row %d: %v", e.Row, ErrRowFailed)
	}
	return fmt.Sprintf("row %d: %v: %s", e.Row, ErrRowFailed, e.Diag)
}

func (e *RowError) Unwrap() error { return ErrRowFailed }
