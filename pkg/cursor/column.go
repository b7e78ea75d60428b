package cursor

import (
	"fmt"

	"github.com/umputun/rowbatch/pkg/backend"
	"github.com/umputun/rowbatch/pkg/sqltypes"
)

// maxNameLen is the capacity of the column name capture buffer
const maxNameLen = 255

// Column is a result column descriptor. It owns the row-batch buffer and the indicator array
// registered with the backend for its ordinal.
type Column struct {
	Ordinal       int
	Name          string
	Type          sqltypes.Code
	Size          int
	DecimalDigits int
	Nullable      backend.Nullability
	Layout        sqltypes.Layout

	buf []byte  // Layout.Width bytes per row
	ind []int64 // one slot per row
}

// ColumnMeta is the caller-facing summary of a column.
type ColumnMeta struct {
	Name     string
	Type     sqltypes.Code
	Size     int
	Nullable bool
}

// Description mirrors the classic seven-item column description. Precision and Scale are set for
// decimal columns only.
type Description struct {
	Name         string
	Type         sqltypes.Code
	DisplaySize  int
	InternalSize int
	Precision    *int
	Scale        *int
	NullOK       bool
}

// Value is one fetched cell. Null and Truncated are mutually exclusive; a truncated value holds
// the part that fit into the buffer.
type Value struct {
	V         any
	Null      bool
	Truncated bool
}

func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	return fmt.Sprintf("%v", v.V)
}

func newColumn(ordinal int, name string, info backend.ColumnInfo, rows int) *Column {
	lay := sqltypes.Resolve(info.Type, info.Size)
	return &Column{
		Ordinal:       ordinal,
		Name:          name,
		Type:          info.Type,
		Size:          info.Size,
		DecimalDigits: info.DecimalDigits,
		Nullable:      info.Nullable,
		Layout:        lay,
		buf:           make([]byte, lay.Width*rows),
		ind:           make([]int64, rows),
	}
}

// BufferSize is the byte size of the row-batch buffer, element width times batch size.
func (c *Column) BufferSize() int { return len(c.buf) }

// Slots is the number of indicator slots, equal to the batch size.
func (c *Column) Slots() int { return len(c.ind) }

// Indicator returns the raw indicator of a row slot.
func (c *Column) Indicator(row int) int64 { return c.ind[row] }

// Meta returns the column summary.
func (c *Column) Meta() ColumnMeta {
	return ColumnMeta{Name: c.Name, Type: c.Type, Size: c.Size, Nullable: c.Nullable != backend.NoNulls}
}

// Description returns the column description.
func (c *Column) Description() Description {
	d := Description{Name: c.Name, Type: c.Type, DisplaySize: c.Layout.Display, InternalSize: c.Size,
		NullOK: c.Nullable != backend.NoNulls}
	if c.Type == sqltypes.Decimal || c.Type == sqltypes.Numeric {
		precision, scale := c.Size, c.DecimalDigits
		d.Precision, d.Scale = &precision, &scale
	}
	return d
}

// value decodes a row slot, consulting the indicator first.
func (c *Column) value(row int) (Value, error) {
	width := c.Layout.Width
	elem := c.buf[row*width : (row+1)*width]
	switch ind := c.ind[row]; {
	case ind == sqltypes.NullData:
		return Value{Null: true}, nil
	case ind == sqltypes.Truncated:
		v, err := sqltypes.Decode(c.Layout.Target, elem, -1)
		if err != nil {
			return Value{}, fmt.Errorf("can't decode column %d row %d: %w", c.Ordinal, row, err)
		}
		return Value{V: v, Truncated: true}, nil
	case ind < 0:
		return Value{}, fmt.Errorf("column %d row %d: unexpected indicator %d", c.Ordinal, row, ind)
	default:
		v, err := sqltypes.Decode(c.Layout.Target, elem, int(ind))
		if err != nil {
			return Value{}, fmt.Errorf("can't decode column %d row %d: %w", c.Ordinal, row, err)
		}
		return Value{V: v}, nil
	}
}

func (c *Column) release() {
	c.buf, c.ind = nil, nil
}
