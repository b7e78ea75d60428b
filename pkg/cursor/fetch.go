package cursor

import (
	"fmt"
	"log"
	"strings"

	"github.com/umputun/rowbatch/pkg/backend"
	"github.com/umputun/rowbatch/pkg/sqltypes"
)

// FetchResult reports the outcome of a fetch. Exhausted is set once the result set has no more rows,
// Delivered is 0 in that case.
type FetchResult struct {
	Delivered int
	Exhausted bool
}

// Fetch fills the row batch with up to RowBatchSize rows. It fails without calling the backend
// if the cursor is closed or has no result set. Row slots not filled by the backend report
// RowNoRow in RowStatus.
func (c *Cursor) Fetch() (FetchResult, error) {
	if c.state == Closed || c.h == 0 {
		return FetchResult{}, ErrCursorUnavailable
	}
	if c.state != Opened || c.batch == nil {
		return FetchResult{}, ErrNoActiveResultSet
	}

	for i := range c.status {
		c.status[i] = sqltypes.RowNoRow
	}
	c.rowsFetched, c.batch.fetched, c.batch.next, c.rowDiags = 0, 0, 0, nil

	ret := c.drv.Fetch(c.h)
	if ret == backend.NoData {
		c.batch.done = true
		return FetchResult{Exhausted: true}, nil
	}
	if err := check(c.drv, "Fetch", ret, backend.HandleStmt, c.h); err != nil {
		return FetchResult{}, fmt.Errorf("can't fetch: %w", err)
	}
	if ret == backend.SuccessWithInfo {
		c.collectRowDiags()
	}

	c.batch.fetched = min(max(c.rowsFetched, 0), c.batch.size)
	return FetchResult{Delivered: c.batch.fetched}, nil
}

// collectRowDiags keeps the records of failed rows and logs the informational ones.
func (c *Cursor) collectRowDiags() {
	for rec := 1; rec <= len(c.status)+1; rec++ {
		d, ret := c.drv.DiagRec(backend.HandleStmt, c.h, rec)
		if !ret.Succeeded() {
			return
		}
		if strings.HasPrefix(d.State, "01") {
			log.Printf("[DEBUG] fetch info: %s", d)
			continue
		}
		log.Printf("[WARN] fetch row failed: %s", d)
		c.rowDiags = append(c.rowDiags, d)
	}
}

// rowError builds the error for a failed row. The n-th failed row of the batch gets the n-th record.
func (c *Cursor) rowError(row int) error {
	failed := 0
	for i := 0; i < row; i++ {
		if c.status[i] == sqltypes.RowError {
			failed++
		}
	}
	e := &RowError{Row: row}
	if failed < len(c.rowDiags) {
		e.Diag = &c.rowDiags[failed]
	}
	return e
}

// Value returns the cell of a 1-based column ordinal and a 0-based row of the last fetched batch.
// Cells of a failed row are never returned, the error wraps ErrRowFailed.
func (c *Cursor) Value(ordinal, row int) (Value, error) {
	if c.state == Closed {
		return Value{}, ErrCursorUnavailable
	}
	col, err := c.Column(ordinal)
	if err != nil {
		return Value{}, err
	}
	if row < 0 || row >= c.batch.fetched {
		return Value{}, fmt.Errorf("row %d of %d: %w", row, c.batch.fetched, ErrOutOfRange)
	}
	if c.status[row] == sqltypes.RowError {
		return Value{}, c.rowError(row)
	}
	return col.value(row)
}

// Row returns all cells of a 0-based row of the last fetched batch, ordered by ordinal.
// A row the backend failed to convert returns a *RowError.
func (c *Cursor) Row(row int) ([]Value, error) {
	if c.state == Closed {
		return nil, ErrCursorUnavailable
	}
	res := make([]Value, 0, c.ColumnCount())
	for ordinal := 1; ordinal <= c.ColumnCount(); ordinal++ {
		v, err := c.Value(ordinal, row)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	if len(res) == 0 {
		return nil, ErrNoActiveResultSet
	}
	return res, nil
}
