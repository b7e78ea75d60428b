// Package sqltypes defines backend column type codes and the mapping from a declared column type to the
// in-memory layout used for bound result buffers. The same layout rules are shared by the cursor engine,
// which allocates buffers, and by backends, which write into them.
package sqltypes

import "fmt"

// Code is a backend-declared column type code. Values follow the ODBC numbering.
type Code int16

// backend type codes
const (
	Unknown       Code = 0
	Char          Code = 1
	Numeric       Code = 2
	Decimal       Code = 3
	Integer       Code = 4
	SmallInt      Code = 5
	Float         Code = 6
	Real          Code = 7
	Double        Code = 8
	DateTime      Code = 9
	VarChar       Code = 12
	TypeDate      Code = 91
	TypeTime      Code = 92
	TypeTimestamp Code = 93
	LongVarChar   Code = -1
	Binary        Code = -2
	VarBinary     Code = -3
	LongVarBinary Code = -4
	BigInt        Code = -5
	TinyInt       Code = -6
	Bit           Code = -7
	WChar         Code = -8
	WVarChar      Code = -9
	WLongVarChar  Code = -10
	GUID          Code = -11
)

var codeNames = map[Code]string{
	Unknown: "UNKNOWN", Char: "CHAR", Numeric: "NUMERIC", Decimal: "DECIMAL", Integer: "INTEGER",
	SmallInt: "SMALLINT", Float: "FLOAT", Real: "REAL", Double: "DOUBLE", DateTime: "DATETIME",
	VarChar: "VARCHAR", TypeDate: "DATE", TypeTime: "TIME", TypeTimestamp: "TIMESTAMP",
	LongVarChar: "LONGVARCHAR", Binary: "BINARY", VarBinary: "VARBINARY", LongVarBinary: "LONGVARBINARY",
	BigInt: "BIGINT", TinyInt: "TINYINT", Bit: "BIT", WChar: "WCHAR", WVarChar: "WVARCHAR",
	WLongVarChar: "WLONGVARCHAR", GUID: "GUID",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("TYPE(%d)", int16(c))
}

// Target is the buffer representation chosen for a column.
type Target int

// buffer representations
const (
	Text Target = iota
	WideText
	Int8
	Int16
	Int32
	Int64
	Double64
	Date
	Timestamp
)

func (t Target) String() string {
	switch t {
	case Text:
		return "text"
	case WideText:
		return "wide-text"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Double64:
		return "double"
	case Date:
		return "date"
	case Timestamp:
		return "timestamp"
	}
	return fmt.Sprintf("target(%d)", int(t))
}

// element sizes of the fixed-width representations
const (
	WideUnit      = 2  // bytes per UTF-16 code unit
	DateSize      = 6  // year int16, month uint16, day uint16
	TimestampSize = 16 // date fields, hour/minute/second uint16, fraction uint32 (ns)
)

// Layout describes how one column is stored: the representation, the byte width of a single
// row's element, and the width the value needs for display.
type Layout struct {
	Target  Target
	Width   int // bytes per row element
	Display int // display width in characters
}

// Resolve maps a backend type code and declared size (or precision) to a buffer layout.
// It is a pure function of its arguments. Unknown codes fall back to text sized size+1,
// so an unrecognized backend type never fails a result set.
func Resolve(code Code, size int) Layout {
	if size < 0 {
		size = 0
	}
	switch code {
	case Char, VarChar, LongVarChar:
		return Layout{Target: Text, Width: size + 1, Display: size}
	case WChar, WVarChar, WLongVarChar:
		// the terminator slot is a whole UTF-16 unit
		return Layout{Target: WideText, Width: (size + 1) * WideUnit, Display: size}
	case TinyInt:
		return Layout{Target: Int8, Width: 1, Display: 4}
	case SmallInt:
		return Layout{Target: Int16, Width: 2, Display: 6}
	case Integer:
		return Layout{Target: Int32, Width: 4, Display: 11}
	case BigInt:
		return Layout{Target: Int64, Width: 8, Display: 20}
	case Real, Float, Double:
		return Layout{Target: Double64, Width: 8, Display: 24}
	case Decimal, Numeric:
		// room for sign or decimal point plus the terminator
		return Layout{Target: Text, Width: size + 2, Display: size + 1}
	case TypeDate:
		return Layout{Target: Date, Width: DateSize, Display: 10}
	case DateTime, TypeTimestamp:
		return Layout{Target: Timestamp, Width: TimestampSize, Display: max(size, 19)}
	default:
		return Layout{Target: Text, Width: size + 1, Display: size}
	}
}

// Indicator sentinels stored in a row's indicator slot instead of a byte length.
const (
	NullData  int64 = -1 // the value is SQL NULL
	Truncated int64 = -4 // the value did not fit into the element and was cut
)

// RowStatus is the per-row outcome of a multi-row fetch.
type RowStatus int16

// row statuses, ODBC numbering
const (
	RowSuccess         RowStatus = 0
	RowDeleted         RowStatus = 1
	RowUpdated         RowStatus = 2
	RowNoRow           RowStatus = 3
	RowAdded           RowStatus = 4
	RowError           RowStatus = 5
	RowSuccessWithInfo RowStatus = 6
)

func (s RowStatus) String() string {
	switch s {
	case RowSuccess:
		return "success"
	case RowDeleted:
		return "deleted"
	case RowUpdated:
		return "updated"
	case RowNoRow:
		return "no-row"
	case RowAdded:
		return "added"
	case RowError:
		return "error"
	case RowSuccessWithInfo:
		return "success-with-info"
	}
	return fmt.Sprintf("status(%d)", int16(s))
}
