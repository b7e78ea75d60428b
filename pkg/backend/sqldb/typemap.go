package sqldb

import (
	"database/sql"
	"regexp"
	"strconv"
	"strings"

	"github.com/umputun/rowbatch/pkg/backend"
	"github.com/umputun/rowbatch/pkg/sqltypes"
)

// declRe splits a declared type like "VARCHAR(20)" or "DECIMAL(10, 2)" into name and modifiers
var declRe = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_ ]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?\s*$`)

const defaultDecimalPrecision = 38

// decl is a parsed database type declaration
type decl struct {
	name  string
	size  int // -1 if not declared
	scale int // -1 if not declared
}

func parseDecl(s string) decl {
	m := declRe.FindStringSubmatch(s)
	if m == nil {
		return decl{name: strings.ToUpper(strings.TrimSpace(s)), size: -1, scale: -1}
	}
	res := decl{name: strings.ToUpper(m[1]), size: -1, scale: -1}
	if m[2] != "" {
		res.size, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		res.scale, _ = strconv.Atoi(m[3])
	}
	return res
}

// columnInfo maps a database/sql column type to backend column info.
func (d *Driver) columnInfo(dialect string, ct *sql.ColumnType) backend.ColumnInfo {
	dc := parseDecl(ct.DatabaseTypeName())
	info := backend.ColumnInfo{NameLen: len(ct.Name()), Nullable: backend.NullableUnknown}
	if nullable, ok := ct.Nullable(); ok {
		info.Nullable = backend.NoNulls
		if nullable {
			info.Nullable = backend.Nullable
		}
	}

	length := dc.size
	if l, ok := ct.Length(); ok && l > 0 && l < int64(d.maxText) {
		length = int(l)
	}

	switch dc.name {
	case "TINYINT", "INT1":
		info.Type, info.Size = sqltypes.TinyInt, 3
	case "SMALLINT", "INT2", "YEAR", "SMALLSERIAL":
		info.Type, info.Size = sqltypes.SmallInt, 5
	case "INT", "INTEGER", "INT4", "MEDIUMINT", "SERIAL":
		info.Type, info.Size = sqltypes.Integer, 10
		if dialect == dialectSqlite { // sqlite integers are always 64 bit
			info.Type, info.Size = sqltypes.BigInt, 19
		}
	case "BIGINT", "INT8", "BIGSERIAL", "UNSIGNED BIG INT", "UNSIGNED INT", "UNSIGNED MEDIUMINT":
		info.Type, info.Size = sqltypes.BigInt, 19
	case "UNSIGNED BIGINT": // may not fit into int64
		info.Type, info.Size = sqltypes.Decimal, 20
	case "UNSIGNED TINYINT", "UNSIGNED SMALLINT":
		info.Type, info.Size = sqltypes.Integer, 10
	case "REAL", "FLOAT4":
		info.Type, info.Size = sqltypes.Real, 7
	case "FLOAT", "DOUBLE", "FLOAT8", "DOUBLE PRECISION":
		info.Type, info.Size = sqltypes.Double, 15
	case "DECIMAL", "NUMERIC":
		info.Type, info.Size, info.DecimalDigits = sqltypes.Decimal, defaultDecimalPrecision, max(dc.scale, 0)
		if precision, scale, ok := ct.DecimalSize(); ok {
			info.Size, info.DecimalDigits = int(precision), int(scale)
		} else if dc.size > 0 {
			info.Size = dc.size
		}
	case "DATE":
		info.Type, info.Size = sqltypes.TypeDate, 10
	case "DATETIME", "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITHOUT TIME ZONE":
		info.Type, info.Size = sqltypes.TypeTimestamp, 26
	case "BOOL", "BOOLEAN", "BIT":
		info.Type, info.Size = sqltypes.Bit, 1
	case "UUID":
		info.Type, info.Size = sqltypes.GUID, 36
	case "CHAR", "BPCHAR", "CHARACTER", "NCHAR":
		info.Type, info.Size = d.text(sqltypes.Char, sqltypes.WChar), d.textSize(length)
	case "VARCHAR", "CHARACTER VARYING", "NVARCHAR", "VARYING CHARACTER", "NAME":
		info.Type, info.Size = d.text(sqltypes.VarChar, sqltypes.WVarChar), d.textSize(length)
		if length <= 0 {
			info.Type = d.text(sqltypes.LongVarChar, sqltypes.WLongVarChar)
		}
	case "BLOB", "BYTEA", "BINARY", "VARBINARY", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB":
		info.Type, info.Size = sqltypes.LongVarBinary, d.textSize(length)
	default: // TEXT, JSON and anything without a declared type
		info.Type, info.Size = d.text(sqltypes.LongVarChar, sqltypes.WLongVarChar), d.maxText
		if dc.name == "" {
			info.Type = sqltypes.Unknown
		}
	}
	return info
}

func (d *Driver) text(narrow, wide sqltypes.Code) sqltypes.Code {
	if d.wide {
		return wide
	}
	return narrow
}

// textSize clamps a declared text length, unbounded text gets maxText
func (d *Driver) textSize(length int) int {
	if length <= 0 || length > d.maxText {
		return d.maxText
	}
	return length
}
