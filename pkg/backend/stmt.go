package backend

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/umputun/rowbatch/pkg/sqltypes"
)

// Binding is an output buffer registered for one column.
type Binding struct {
	Target sqltypes.Target
	Buf    []byte
	Width  int
	Ind    []int64
}

// StmtState keeps the statement attributes and column bindings a driver needs to serve Fetch.
// Drivers embed it in their statement objects.
type StmtState struct {
	CursorType  CursorType
	ArraySize   int
	RowsFetched *int
	RowStatus   []sqltypes.RowStatus
	Bindings    map[int]Binding
}

// NewStmtState makes state with the defaults of a fresh statement: forward-only, one row per fetch.
func NewStmtState() *StmtState {
	return &StmtState{CursorType: CursorForwardOnly, ArraySize: 1, Bindings: map[int]Binding{}}
}

// SetAttr applies a statement attribute, checking the value type.
func (s *StmtState) SetAttr(attr StmtAttr, value any) error {
	switch attr {
	case AttrCursorType:
		ct, ok := value.(CursorType)
		if !ok {
			return fmt.Errorf("cursor type must be CursorType, got %T", value)
		}
		s.CursorType = ct
	case AttrRowArraySize:
		n, ok := value.(int)
		if !ok || n < 1 {
			return fmt.Errorf("row array size must be a positive int, got %v", value)
		}
		s.ArraySize = n
	case AttrRowsFetched:
		p, ok := value.(*int)
		if !ok {
			return fmt.Errorf("rows fetched target must be *int, got %T", value)
		}
		s.RowsFetched = p
	case AttrRowStatusPtr:
		rs, ok := value.([]sqltypes.RowStatus)
		if !ok {
			return fmt.Errorf("row status target must be []sqltypes.RowStatus, got %T", value)
		}
		s.RowStatus = rs
	default:
		return fmt.Errorf("unsupported statement attribute %d", attr)
	}
	return nil
}

// Bind registers an output buffer for ordinal after checking it can hold ArraySize rows.
func (s *StmtState) Bind(ordinal int, b Binding) error {
	if ordinal < 1 {
		return fmt.Errorf("invalid column ordinal %d", ordinal)
	}
	if b.Width < 1 || len(b.Buf) < b.Width*s.ArraySize || len(b.Ind) < s.ArraySize {
		return fmt.Errorf("buffer for column %d too small for %d rows of %d bytes", ordinal, s.ArraySize, b.Width)
	}
	s.Bindings[ordinal] = b
	return nil
}

// Put writes the values of one result row into slot row of every bound column, in ordinal order.
// values are ordered by ordinal, nil is SQL NULL. Every bound slot of the row is written even when a value
// can't be converted: the failed slot is emptied and the row is reported as RowError with the first error.
func (s *StmtState) Put(row int, values []any) (sqltypes.RowStatus, error) {
	status := sqltypes.RowSuccess
	var failure error
	for _, ordinal := range slices.Sorted(maps.Keys(s.Bindings)) {
		b := s.Bindings[ordinal]
		elem := b.Buf[row*b.Width : (row+1)*b.Width]
		if ordinal > len(values) {
			clear(elem)
			b.Ind[row] = 0
			if failure == nil {
				failure = fmt.Errorf("column %d is bound but the row has %d values", ordinal, len(values))
			}
			continue
		}
		v := values[ordinal-1]
		if v == nil {
			b.Ind[row] = sqltypes.NullData
			continue
		}
		n, truncated, err := sqltypes.Encode(b.Target, elem, v)
		if err != nil {
			clear(elem)
			b.Ind[row] = 0
			if failure == nil {
				failure = fmt.Errorf("column %d: %w", ordinal, err)
			}
			continue
		}
		b.Ind[row] = int64(n)
		if truncated {
			b.Ind[row] = sqltypes.Truncated
			status = sqltypes.RowSuccessWithInfo
		}
	}
	if failure != nil {
		return sqltypes.RowError, failure
	}
	return status, nil
}

// Reset empties slot row of every bound column. Drivers call it for rows they could not read at all.
func (s *StmtState) Reset(row int) {
	for _, b := range s.Bindings {
		clear(b.Buf[row*b.Width : (row+1)*b.Width])
		b.Ind[row] = 0
	}
}

// SetStatus records the status of a row slot if a status target is registered.
func (s *StmtState) SetStatus(row int, st sqltypes.RowStatus) {
	if row < len(s.RowStatus) {
		s.RowStatus[row] = st
	}
}

// Finish reports the number of delivered rows and marks the remaining status slots as not populated.
func (s *StmtState) Finish(n int) {
	if s.RowsFetched != nil {
		*s.RowsFetched = n
	}
	for i := n; i < len(s.RowStatus); i++ {
		s.RowStatus[i] = sqltypes.RowNoRow
	}
}

// Diagnostics stores diagnostic records per handle. Each failing call replaces the
// records of the handle it failed on. Safe for concurrent use.
type Diagnostics struct {
	mu   sync.Mutex
	recs map[Handle][]DiagRecord
}

// Set replaces the records for h.
func (d *Diagnostics) Set(h Handle, recs ...DiagRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recs == nil {
		d.recs = map[Handle][]DiagRecord{}
	}
	for i := range recs {
		if msg := recs[i].Message; len(msg) > MaxMessageLen {
			cut := MaxMessageLen
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
			recs[i].Message = msg[:cut]
		}
	}
	d.recs[h] = recs
}

// Clear drops all records for h.
func (d *Diagnostics) Clear(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.recs, h)
}

// Get returns record rec (1-based) for h.
func (d *Diagnostics) Get(h Handle, rec int) (DiagRecord, Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	recs := d.recs[h]
	if rec < 1 || rec > len(recs) {
		return DiagRecord{}, NoData
	}
	return recs[rec-1], Success
}
