package sqldb

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"

	"github.com/umputun/rowbatch/pkg/backend"
)

// generic SQLSTATEs used when the database driver reports none
const (
	stateGeneral        = "HY000"
	stateConnection     = "08001"
	stateInvalidCursor  = "24000"
	stateSyntax         = "42000"
	stateNoTable        = "42S02"
	stateNoColumn       = "42S22"
	stateTruncated      = "01004"
	stateConversion     = "22018"
	stateInvalidIndex   = "07009"
	stateInvalidAttr    = "HY024"
	stateBufferTooSmall = "HY090"
)

// diagRecord translates a database driver error into a diagnostic record.
func diagRecord(err error) backend.DiagRecord {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return backend.DiagRecord{State: string(pqErr.Code), Message: pqErr.Message}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		state := string(myErr.SQLState[:])
		if strings.Trim(state, "\x00") == "" {
			state = stateGeneral
		}
		return backend.DiagRecord{State: state, Native: int32(myErr.Number), Message: myErr.Message}
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return backend.DiagRecord{State: sqliteState(liteErr.Error()), Native: int32(liteErr.Code()), Message: liteErr.Error()}
	}

	return backend.DiagRecord{State: stateGeneral, Message: err.Error()}
}

// sqliteState guesses the SQLSTATE from a sqlite message, sqlite has only result codes
func sqliteState(msg string) string {
	switch {
	case strings.Contains(msg, "syntax error"), strings.Contains(msg, "incomplete input"):
		return stateSyntax
	case strings.Contains(msg, "no such table"):
		return stateNoTable
	case strings.Contains(msg, "no such column"):
		return stateNoColumn
	case strings.Contains(msg, "constraint failed"):
		return "23000"
	}
	return stateGeneral
}
