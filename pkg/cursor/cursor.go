// Package cursor implements a bound-buffer cursor over a backend.Driver. A cursor executes statements,
// describes the result columns, binds one row-batch buffer per column and fetches rows in batches
// directly into those buffers.
//
// A cursor moves between three states: Closed (no statement handle), Allocated (statement ready, no
// result set) and Opened (result set described and bound). A cursor is not safe for concurrent use,
// a connection may serve several cursors used from one goroutine at a time.
package cursor

import (
	"fmt"
	"log"

	"github.com/hashicorp/go-multierror"

	"github.com/umputun/rowbatch/pkg/backend"
	"github.com/umputun/rowbatch/pkg/sqltypes"
)

// State is the cursor lifecycle state.
type State int

// cursor states
const (
	Closed State = iota
	Allocated
	Opened
)

func (s State) String() string {
	switch s {
	case Allocated:
		return "allocated"
	case Opened:
		return "opened"
	}
	return "closed"
}

// Cursor executes statements and fetches their results in row batches.
type Cursor struct {
	drv       backend.Driver
	conn      *Connection
	h         backend.Handle
	state     State
	destroyed bool

	batchSize   int
	rowCount    int64
	batch       *rowBatch
	status      []sqltypes.RowStatus // registered with the backend, written by Fetch
	rowsFetched int                  // registered with the backend, written by Fetch
	rowDiags    []backend.DiagRecord // failed-row records of the last fetch, in row order
	warnings    []error
}

// NewCursor makes a cursor on conn and allocates its statement handle.
func NewCursor(conn *Connection) (*Cursor, error) {
	if conn == nil || conn.h == 0 {
		return nil, fmt.Errorf("can't make cursor: %w", ErrCursorUnavailable)
	}
	c := &Cursor{drv: conn.drv, conn: conn, batchSize: 1, rowCount: -1}
	if err := c.Allocate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Allocate gets a statement handle and makes it forward-only. It reopens a closed cursor and does
// nothing for a cursor that is already allocated.
func (c *Cursor) Allocate() error {
	if c.destroyed {
		return ErrCursorUnavailable
	}
	if c.state != Closed {
		return nil
	}
	if c.h == 0 {
		if c.conn.h == 0 {
			return fmt.Errorf("can't allocate statement, connection closed: %w", ErrCursorUnavailable)
		}
		h, ret := c.drv.AllocStmt(c.conn.h)
		if err := check(c.drv, "AllocStmt", ret, backend.HandleConn, c.conn.h); err != nil {
			return fmt.Errorf("can't allocate statement: %w", err)
		}
		c.h = h
	}
	ret := c.drv.SetStmtAttr(c.h, backend.AttrCursorType, backend.CursorForwardOnly)
	if err := check(c.drv, "SetStmtAttr", ret, backend.HandleStmt, c.h); err != nil {
		c.drv.FreeStmt(c.h)
		c.h = 0
		return fmt.Errorf("can't set cursor type: %w", err)
	}
	c.state = Allocated
	return nil
}

// SetRowBatchSize sets the number of rows delivered per fetch. It applies to the next execute.
func (c *Cursor) SetRowBatchSize(n int) error {
	if n < 1 {
		return ErrInvalidBatchSize
	}
	c.batchSize = n
	return nil
}

// RowBatchSize returns the configured batch size.
func (c *Cursor) RowBatchSize() int { return c.batchSize }

// ExecDirect executes a statement. Any previous result set is released first. On success the cursor
// is Opened if the statement produced columns and Allocated otherwise, failures leave it Allocated.
func (c *Cursor) ExecDirect(query string) error {
	if c.state == Closed || c.h == 0 {
		return ErrCursorUnavailable
	}
	if err := c.release(); err != nil {
		log.Printf("[WARN] can't release previous result: %v", err)
	}

	c.status = make([]sqltypes.RowStatus, c.batchSize)
	for i := range c.status {
		c.status[i] = sqltypes.RowNoRow
	}
	attrs := []struct {
		attr  backend.StmtAttr
		value any
	}{
		{backend.AttrRowArraySize, c.batchSize},
		{backend.AttrRowsFetched, &c.rowsFetched},
		{backend.AttrRowStatusPtr, c.status},
	}
	for _, a := range attrs {
		ret := c.drv.SetStmtAttr(c.h, a.attr, a.value)
		if err := check(c.drv, "SetStmtAttr", ret, backend.HandleStmt, c.h); err != nil {
			return fmt.Errorf("can't set statement attribute %d: %w", a.attr, err)
		}
	}

	ret := c.drv.ExecDirect(c.h, query)
	if err := check(c.drv, "ExecDirect", ret, backend.HandleStmt, c.h); err != nil {
		return fmt.Errorf("can't execute: %w", err)
	}
	if ret == backend.SuccessWithInfo {
		if d := Diagnose(c.drv, backend.HandleStmt, c.h); d != nil {
			log.Printf("[DEBUG] execute info: %s", d)
		}
	}

	n, ret := c.drv.RowCount(c.h)
	if err := check(c.drv, "RowCount", ret, backend.HandleStmt, c.h); err != nil {
		c.closeBackendCursor()
		return fmt.Errorf("can't get row count: %w", err)
	}
	c.rowCount = n

	if err := c.describe(); err != nil {
		c.rowCount = -1
		c.closeBackendCursor()
		return err
	}
	if c.batch != nil {
		c.state = Opened
	}
	log.Printf("[DEBUG] executed on stmt %d, state %s, columns %d, row count %d", c.h, c.state, c.ColumnCount(), c.rowCount)
	return nil
}

// Close releases the result set and row buffers. The statement handle is kept, Allocate makes the
// cursor usable again. Closing a closed cursor is a no-op.
func (c *Cursor) Close() error {
	if c.state == Closed {
		return nil
	}
	err := c.release()
	c.status = nil
	c.state = Closed
	return err
}

// Destroy closes the cursor and frees its statement handle. The cursor can't be used afterwards.
func (c *Cursor) Destroy() error {
	errs := new(multierror.Error)
	if err := c.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.h != 0 {
		if err := check(c.drv, "FreeStmt", c.drv.FreeStmt(c.h), backend.HandleStmt, c.h); err != nil {
			errs = multierror.Append(errs, err)
		}
		c.h = 0
	}
	c.destroyed = true
	return errs.ErrorOrNil()
}

// release closes the backend cursor, unbinds and drops the row batch. Buffers are dropped even if the
// backend calls fail.
func (c *Cursor) release() error {
	errs := new(multierror.Error)
	if c.state == Opened {
		ret := c.drv.CloseCursor(c.h)
		if err := check(c.drv, "CloseCursor", ret, backend.HandleStmt, c.h); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if c.batch != nil {
		ret := c.drv.Unbind(c.h)
		if err := check(c.drv, "Unbind", ret, backend.HandleStmt, c.h); err != nil {
			errs = multierror.Append(errs, err)
		}
		c.batch.release()
		c.batch = nil
	}
	c.rowCount, c.rowsFetched, c.warnings, c.rowDiags = -1, 0, nil, nil
	if c.state == Opened {
		c.state = Allocated
	}
	return errs.ErrorOrNil()
}

// closeBackendCursor discards a result set the cursor never took ownership of.
func (c *Cursor) closeBackendCursor() {
	if ret := c.drv.CloseCursor(c.h); !ret.Succeeded() {
		log.Printf("[DEBUG] close cursor after failed execute: %s", ret)
	}
}

// State returns the lifecycle state.
func (c *Cursor) State() State { return c.state }

// RowCount returns the rows affected by the last statement, -1 if unknown.
func (c *Cursor) RowCount() int64 { return c.rowCount }

// ColumnCount returns the number of result columns, 0 without a result set.
func (c *Cursor) ColumnCount() int {
	if c.batch == nil {
		return 0
	}
	return len(c.batch.columns)
}

// Column returns the descriptor for a 1-based ordinal.
func (c *Cursor) Column(ordinal int) (*Column, error) {
	if c.batch == nil {
		return nil, ErrNoActiveResultSet
	}
	col, ok := c.batch.column(ordinal)
	if !ok {
		return nil, fmt.Errorf("column %d of %d: %w", ordinal, len(c.batch.columns), ErrOutOfRange)
	}
	return col, nil
}

// ColumnMetadata returns name, type, size and nullability of a 1-based ordinal.
func (c *Cursor) ColumnMetadata(ordinal int) (ColumnMeta, error) {
	col, err := c.Column(ordinal)
	if err != nil {
		return ColumnMeta{}, err
	}
	return col.Meta(), nil
}

// Description returns the descriptions of all result columns, nil without a result set.
func (c *Cursor) Description() []Description {
	if c.batch == nil {
		return nil
	}
	res := make([]Description, 0, len(c.batch.columns))
	for _, col := range c.batch.columns {
		res = append(res, col.Description())
	}
	return res
}

// RowStatus returns a copy of the row status of the last fetch, one entry per batch slot.
func (c *Cursor) RowStatus() []sqltypes.RowStatus {
	if c.status == nil {
		return nil
	}
	res := make([]sqltypes.RowStatus, len(c.status))
	copy(res, c.status)
	return res
}

// RowsFetched returns the number of rows delivered by the last fetch.
func (c *Cursor) RowsFetched() int {
	if c.batch == nil {
		return 0
	}
	return c.batch.fetched
}

// Warnings returns the warnings collected while describing the current result set.
func (c *Cursor) Warnings() []error { return c.warnings }
