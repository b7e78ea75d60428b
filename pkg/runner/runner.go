// Package runner executes query book entries through cursors and hands the fetched batches to a printer.
package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-pkgz/syncs"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/rowbatch/pkg/backend"
	"github.com/umputun/rowbatch/pkg/config"
	"github.com/umputun/rowbatch/pkg/cursor"
)

// Process runs queries of a book. Each query gets its own connection and cursor, up to Concurrency
// queries run at the same time.
type Process struct {
	Driver      backend.Driver
	Book        *config.Book
	Concurrency int
	Printer     Printer
	Limit       int // max rows per query, 0 for all
}

// Printer receives query results. It is called from several goroutines if Concurrency > 1.
// Begin is not called for statements without a result set.
type Printer interface {
	Begin(query string, cols []cursor.Description) error
	Rows(query string, rows [][]cursor.Value) error
	End(query string, rows int, rowCount int64) error
}

// Stats describes a completed query run. RowCount is the backend row count, -1 if unknown.
type Stats struct {
	Name     string
	RunID    string
	Columns  int
	Rows     int
	Batches  int
	RowCount int64
	Duration time.Duration
	Warnings []error
}

// Run executes the named queries, all queries of the book if names is empty. Stats are returned in
// the order of the queries, failed queries are reported together in the returned error.
func (p *Process) Run(ctx context.Context, names ...string) ([]Stats, error) {
	queries, err := p.Book.Select(names...)
	if err != nil {
		return nil, fmt.Errorf("can't select queries: %w", err)
	}
	log.Printf("[DEBUG] run %d queries, concurrency %d", len(queries), p.Concurrency)

	res := make([]Stats, len(queries))
	errs := new(multierror.Error)
	lock := sync.Mutex{}

	wg := syncs.NewErrSizedGroup(max(p.Concurrency, 1), syncs.Context(ctx), syncs.Preemptive)
	for i, q := range queries {
		wg.Go(func() error {
			st, e := p.runQuery(ctx, q)
			res[i] = st
			if e != nil {
				lock.Lock()
				errs = multierror.Append(errs, &QueryError{Name: q.Name, Err: e})
				lock.Unlock()
				return e
			}
			for _, w := range st.Warnings {
				log.Printf("[WARN] query %q: %v", q.Name, w)
			}
			log.Printf("[INFO] completed query %q: rows:%d, batches:%d in %v", q.Name, st.Rows, st.Batches,
				st.Duration.Truncate(time.Millisecond))
			return nil
		})
	}
	werr := wg.Wait()
	if errs.ErrorOrNil() == nil && werr != nil { // queries not started because of cancellation
		if ctx.Err() != nil {
			werr = ctx.Err()
		}
		errs = multierror.Append(errs, werr)
	}
	return res, errs.ErrorOrNil()
}

// QueryError is the failure of a single query
type QueryError struct {
	Name string
	Err  error
}

func (e *QueryError) Error() string { return fmt.Sprintf("query %q: %v", e.Name, e.Err) }

// Unwrap returns the underlying error
func (e *QueryError) Unwrap() error { return e.Err }
