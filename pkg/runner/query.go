package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/rowbatch/pkg/config"
	"github.com/umputun/rowbatch/pkg/cursor"
)

// runQuery executes a single query on its own connection and cursor and streams the batches to the printer
func (p *Process) runQuery(ctx context.Context, q config.Query) (st Stats, err error) {
	st = Stats{Name: q.Name, RunID: uuid.New().String(), RowCount: -1}
	started := time.Now()
	defer func() { st.Duration = time.Since(started) }()
	log.Printf("[DEBUG] run %q (%s), batch %d", q.Name, st.RunID, q.Batch)

	conn, err := cursor.Connect(p.Driver, q.DSN)
	if err != nil {
		return st, err
	}
	defer func() {
		if e := conn.Disconnect(); e != nil {
			err = multierror.Append(err, fmt.Errorf("can't disconnect: %w", e)).ErrorOrNil()
		}
	}()

	c, err := cursor.NewCursor(conn)
	if err != nil {
		return st, err
	}
	defer func() {
		if e := c.Destroy(); e != nil {
			err = multierror.Append(err, fmt.Errorf("can't destroy cursor: %w", e)).ErrorOrNil()
		}
	}()
	if err = c.SetRowBatchSize(q.Batch); err != nil {
		return st, err
	}

	if err = c.ExecDirect(q.SQL); err != nil {
		return st, err
	}
	st.Warnings = c.Warnings()
	st.Columns = c.ColumnCount()
	st.RowCount = c.RowCount()

	if st.Columns == 0 {
		return st, p.Printer.End(q.Name, 0, st.RowCount)
	}

	if err = p.Printer.Begin(q.Name, c.Description()); err != nil {
		return st, err
	}
	for p.Limit <= 0 || st.Rows < p.Limit {
		if err = ctx.Err(); err != nil {
			return st, err
		}
		res, ferr := c.Fetch()
		if ferr != nil {
			return st, ferr
		}
		if res.Exhausted || res.Delivered == 0 {
			break
		}
		st.Batches++

		n := res.Delivered
		if p.Limit > 0 && st.Rows+n > p.Limit {
			n = p.Limit - st.Rows
		}
		rows := make([][]cursor.Value, 0, n)
		for i := 0; i < n; i++ {
			row, rerr := c.Row(i)
			if rerr != nil {
				return st, fmt.Errorf("can't read row %d: %w", st.Rows+i, rerr)
			}
			rows = append(rows, row)
		}
		if err = p.Printer.Rows(q.Name, rows); err != nil {
			return st, err
		}
		st.Rows += n
	}
	log.Printf("[DEBUG] %q fetched %d rows in %d batches", q.Name, st.Rows, st.Batches)
	return st, p.Printer.End(q.Name, st.Rows, st.RowCount)
}
