// Package backend defines the driver interface the cursor engine consumes. A driver resolves connection
// strings, executes statements and fills registered output buffers. Implementations live in sub-packages:
// sqldb runs on top of database/sql drivers, memory is a scripted in-process backend.
package backend

import (
	"fmt"

	"github.com/umputun/rowbatch/pkg/sqltypes"
)

// Handle identifies a backend object (environment, connection or statement).
// Zero is never a valid handle.
type Handle uint64

// HandleKind tells which kind of object a handle refers to.
type HandleKind int16

// handle kinds
const (
	HandleEnv  HandleKind = 1
	HandleConn HandleKind = 2
	HandleStmt HandleKind = 3
)

func (k HandleKind) String() string {
	switch k {
	case HandleEnv:
		return "env"
	case HandleConn:
		return "conn"
	case HandleStmt:
		return "stmt"
	}
	return fmt.Sprintf("kind(%d)", int16(k))
}

// Return is the status code reported by every driver call.
type Return int16

// return codes
const (
	Success         Return = 0
	SuccessWithInfo Return = 1
	Error           Return = -1
	InvalidHandle   Return = -2
	NoData          Return = 100
)

// Succeeded reports whether the call succeeded, with or without extra info.
func (r Return) Succeeded() bool { return r == Success || r == SuccessWithInfo }

func (r Return) String() string {
	switch r {
	case Success:
		return "success"
	case SuccessWithInfo:
		return "success-with-info"
	case Error:
		return "error"
	case InvalidHandle:
		return "invalid-handle"
	case NoData:
		return "no-data"
	}
	return fmt.Sprintf("return(%d)", int16(r))
}

// StmtAttr is a statement attribute accepted by SetStmtAttr.
type StmtAttr int

// statement attributes and the value types they take
const (
	AttrCursorType   StmtAttr = 6  // CursorType
	AttrRowStatusPtr StmtAttr = 25 // []sqltypes.RowStatus, written by Fetch
	AttrRowsFetched  StmtAttr = 26 // *int, written by Fetch
	AttrRowArraySize StmtAttr = 27 // int, rows per Fetch
)

// CursorType selects scrolling semantics.
type CursorType int

// cursor types
const (
	CursorForwardOnly CursorType = 0
	CursorStatic      CursorType = 3
)

// Nullability of a described column.
type Nullability int16

// nullability values
const (
	NoNulls         Nullability = 0
	Nullable        Nullability = 1
	NullableUnknown Nullability = 2
)

// ColumnInfo is what DescribeCol reports for one result column.
// NameLen is the full length of the column name, which may exceed the capture buffer.
type ColumnInfo struct {
	NameLen       int
	Type          sqltypes.Code
	Size          int
	DecimalDigits int
	Nullable      Nullability
}

// DiagRecord is a single diagnostic record: a five-character SQLSTATE, the backend native
// error code and a message.
type DiagRecord struct {
	State   string
	Native  int32
	Message string
}

func (d DiagRecord) String() string {
	return fmt.Sprintf("[%s:%d] %s", d.State, d.Native, d.Message)
}

// MaxMessageLen bounds diagnostic messages, longer ones are cut by the driver.
const MaxMessageLen = 255

// Driver is the backend runtime used by the cursor engine. Calls are synchronous.
// Every call reports a Return code; on anything but Success, SuccessWithInfo or NoData the
// details are available from DiagRec for the handle involved.
type Driver interface {
	AllocEnv() (Handle, Return)
	FreeEnv(env Handle) Return

	Connect(env Handle, connStr string) (Handle, Return)
	Disconnect(conn Handle) Return

	AllocStmt(conn Handle) (Handle, Return)
	FreeStmt(stmt Handle) Return
	SetStmtAttr(stmt Handle, attr StmtAttr, value any) Return

	ExecDirect(stmt Handle, query string) Return
	NumResultCols(stmt Handle) (int, Return)
	// DescribeCol copies the column name into name (cut if it does not fit) and returns the column info.
	DescribeCol(stmt Handle, ordinal int, name []byte) (ColumnInfo, Return)
	// BindCol registers buf (width bytes per row) and ind (one slot per row) as the output of ordinal.
	BindCol(stmt Handle, ordinal int, target sqltypes.Target, buf []byte, width int, ind []int64) Return
	// Unbind drops all registered column buffers of the statement.
	Unbind(stmt Handle) Return
	// Fetch fills up to row-array-size rows into the bound buffers, returns NoData past the last row.
	Fetch(stmt Handle) Return
	CloseCursor(stmt Handle) Return
	RowCount(stmt Handle) (int64, Return)

	// DiagRec returns diagnostic record rec (1-based) of a handle, NoData if there is none.
	DiagRec(kind HandleKind, h Handle, rec int) (DiagRecord, Return)
}
