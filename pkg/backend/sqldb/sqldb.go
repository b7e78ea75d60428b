// Package sqldb implements backend.Driver on top of database/sql. The database driver is picked from the
// shape of the connection string: postgres URLs use lib/pq, mysql DSNs (user:pass@tcp(host)/db) use
// go-sql-driver/mysql and file names or file: URIs use the pure-go sqlite driver.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql driver loaded here
	_ "github.com/lib/pq"              // postgres driver loaded here
	_ "modernc.org/sqlite"             // sqlite driver loaded here

	"github.com/umputun/rowbatch/pkg/backend"
	"github.com/umputun/rowbatch/pkg/sqltypes"
)

// database/sql driver names
const (
	dialectPostgres = "postgres"
	dialectMysql    = "mysql"
	dialectSqlite   = "sqlite"
)

// queryKeywords start statements that return rows
var queryKeywords = []string{"SELECT", "WITH", "VALUES", "SHOW", "PRAGMA", "EXPLAIN", "DESCRIBE", "DESC", "TABLE"}

// Driver is a backend.Driver running statements through database/sql.
// Handles of different connections may be used from different goroutines.
type Driver struct {
	maxText int
	wide    bool
	timeout time.Duration

	mu    sync.Mutex
	next  backend.Handle
	envs  map[backend.Handle]bool
	conns map[backend.Handle]*conn
	stmts map[backend.Handle]*stmt
	diags backend.Diagnostics
}

// Option configures the Driver.
type Option func(d *Driver)

// WithMaxTextSize sets the size reported for text columns without a declared length.
func WithMaxTextSize(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxText = n
		}
	}
}

// WithWideText reports text columns as wide (UTF-16) types.
func WithWideText(wide bool) Option {
	return func(d *Driver) { d.wide = wide }
}

// WithConnectTimeout limits the time spent on opening a connection.
func WithConnectTimeout(t time.Duration) Option {
	return func(d *Driver) { d.timeout = t }
}

type conn struct {
	dialect string
	db      *sql.DB
	c       *sql.Conn
}

type stmt struct {
	*backend.StmtState
	conn     *conn
	rows     *sql.Rows
	infos    []backend.ColumnInfo
	names    []string
	rowCount int64
}

// New makes a Driver.
func New(opts ...Option) *Driver {
	res := &Driver{
		maxText: 4096,
		timeout: 30 * time.Second,
		envs:    map[backend.Handle]bool{},
		conns:   map[backend.Handle]*conn{},
		stmts:   map[backend.Handle]*stmt{},
	}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// Dialect returns the database/sql driver name for a connection string.
func Dialect(connStr string) (string, error) {
	switch {
	case strings.HasPrefix(connStr, "postgres://"), strings.HasPrefix(connStr, "postgresql://"):
		return dialectPostgres, nil
	case strings.Contains(connStr, "@tcp("):
		return dialectMysql, nil
	case strings.HasPrefix(connStr, "file:"), connStr == ":memory:",
		strings.HasSuffix(connStr, ".sqlite"), strings.HasSuffix(connStr, ".db"):
		return dialectSqlite, nil
	}
	return "", fmt.Errorf("unsupported database type in connection string")
}

// AllocEnv makes an environment handle.
func (d *Driver) AllocEnv() (backend.Handle, backend.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.envs[h] = true
	return h, backend.Success
}

// FreeEnv drops an environment handle.
func (d *Driver) FreeEnv(env backend.Handle) backend.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.envs[env] {
		return backend.InvalidHandle
	}
	delete(d.envs, env)
	d.diags.Clear(env)
	return backend.Success
}

// Connect opens the database and pins a single connection for the handle.
func (d *Driver) Connect(env backend.Handle, connStr string) (backend.Handle, backend.Return) {
	d.mu.Lock()
	ok := d.envs[env]
	d.mu.Unlock()
	if !ok {
		return 0, backend.InvalidHandle
	}

	dialect, err := Dialect(connStr)
	if err != nil {
		return 0, d.fail(env, backend.DiagRecord{State: stateConnection, Message: err.Error()})
	}
	db, err := sql.Open(dialect, connStr)
	if err != nil {
		return 0, d.fail(env, backend.DiagRecord{State: stateConnection, Message: err.Error()})
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	c, err := db.Conn(ctx)
	if err == nil {
		err = c.PingContext(ctx)
	}
	if err != nil {
		_ = db.Close()
		rec := diagRecord(err)
		if rec.State == stateGeneral {
			rec.State = stateConnection
		}
		return 0, d.fail(env, rec)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	d.conns[h] = &conn{dialect: dialect, db: db, c: c}
	log.Printf("[DEBUG] connected to %s database, handle %d", dialect, h)
	return h, backend.Success
}

// Disconnect closes the pinned connection and the database.
func (d *Driver) Disconnect(h backend.Handle) backend.Return {
	d.mu.Lock()
	cn, ok := d.conns[h]
	delete(d.conns, h)
	d.mu.Unlock()
	if !ok {
		return backend.InvalidHandle
	}
	if err := cn.c.Close(); err != nil {
		log.Printf("[DEBUG] close connection %d: %v", h, err)
	}
	if err := cn.db.Close(); err != nil {
		return d.fail(h, diagRecord(err))
	}
	return backend.Success
}

// AllocStmt makes a statement handle on a connection.
func (d *Driver) AllocStmt(h backend.Handle) (backend.Handle, backend.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cn, ok := d.conns[h]
	if !ok {
		return 0, backend.InvalidHandle
	}
	sh := d.handle()
	d.stmts[sh] = &stmt{StmtState: backend.NewStmtState(), conn: cn, rowCount: -1}
	return sh, backend.Success
}

// FreeStmt closes open rows and drops the statement handle.
func (d *Driver) FreeStmt(h backend.Handle) backend.Return {
	d.mu.Lock()
	st, ok := d.stmts[h]
	delete(d.stmts, h)
	d.mu.Unlock()
	if !ok {
		return backend.InvalidHandle
	}
	if st.rows != nil {
		_ = st.rows.Close()
	}
	d.diags.Clear(h)
	return backend.Success
}

// SetStmtAttr sets a statement attribute.
func (d *Driver) SetStmtAttr(h backend.Handle, attr backend.StmtAttr, value any) backend.Return {
	st, ok := d.stmt(h)
	if !ok {
		return backend.InvalidHandle
	}
	if err := st.SetAttr(attr, value); err != nil {
		return d.fail(h, backend.DiagRecord{State: stateInvalidAttr, Message: err.Error()})
	}
	return backend.Success
}

// ExecDirect runs a statement. Row-returning statements keep their rows open until CloseCursor.
func (d *Driver) ExecDirect(h backend.Handle, query string) backend.Return {
	st, ok := d.stmt(h)
	if !ok {
		return backend.InvalidHandle
	}
	if st.rows != nil {
		return d.fail(h, backend.DiagRecord{State: stateInvalidCursor, Message: "invalid cursor state, result set is open"})
	}
	d.diags.Clear(h)
	st.infos, st.names, st.rowCount = nil, nil, -1

	ctx := context.Background()
	if !isQuery(query) {
		res, err := st.conn.c.ExecContext(ctx, query)
		if err != nil {
			return d.fail(h, diagRecord(err))
		}
		if n, err := res.RowsAffected(); err == nil {
			st.rowCount = n
		}
		return backend.Success
	}

	rows, err := st.conn.c.QueryContext(ctx, query)
	if err != nil {
		return d.fail(h, diagRecord(err))
	}
	cts, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return d.fail(h, diagRecord(err))
	}
	for _, ct := range cts {
		st.infos = append(st.infos, d.columnInfo(st.conn.dialect, ct))
		st.names = append(st.names, ct.Name())
	}
	st.rows = rows
	return backend.Success
}

// NumResultCols returns the number of columns of the open result.
func (d *Driver) NumResultCols(h backend.Handle) (int, backend.Return) {
	st, ok := d.stmt(h)
	if !ok {
		return 0, backend.InvalidHandle
	}
	return len(st.infos), backend.Success
}

// DescribeCol reports a column of the open result, the name is cut to fit into name.
func (d *Driver) DescribeCol(h backend.Handle, ordinal int, name []byte) (backend.ColumnInfo, backend.Return) {
	st, ok := d.stmt(h)
	if !ok {
		return backend.ColumnInfo{}, backend.InvalidHandle
	}
	if ordinal < 1 || ordinal > len(st.infos) {
		return backend.ColumnInfo{}, d.fail(h, backend.DiagRecord{State: stateInvalidIndex,
			Message: fmt.Sprintf("invalid descriptor index %d", ordinal)})
	}
	copy(name, st.names[ordinal-1])
	return st.infos[ordinal-1], backend.Success
}

// BindCol registers an output buffer for a column.
func (d *Driver) BindCol(h backend.Handle, ordinal int, target sqltypes.Target, buf []byte, width int, ind []int64) backend.Return {
	st, ok := d.stmt(h)
	if !ok {
		return backend.InvalidHandle
	}
	if err := st.Bind(ordinal, backend.Binding{Target: target, Buf: buf, Width: width, Ind: ind}); err != nil {
		return d.fail(h, backend.DiagRecord{State: stateBufferTooSmall, Message: err.Error()})
	}
	return backend.Success
}

// Unbind drops all output buffers of the statement.
func (d *Driver) Unbind(h backend.Handle) backend.Return {
	st, ok := d.stmt(h)
	if !ok {
		return backend.InvalidHandle
	}
	st.Bindings = map[int]backend.Binding{}
	return backend.Success
}

// Fetch scans up to row-array-size rows into the bound buffers.
func (d *Driver) Fetch(h backend.Handle) backend.Return {
	st, ok := d.stmt(h)
	if !ok {
		return backend.InvalidHandle
	}
	if st.rows == nil {
		return d.fail(h, backend.DiagRecord{State: stateInvalidCursor, Message: "invalid cursor state, no result set"})
	}

	vals := make([]any, len(st.infos))
	ptrs := make([]any, len(st.infos))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	var recs []backend.DiagRecord
	n, failed, truncated := 0, 0, false
	for n < st.ArraySize && st.rows.Next() {
		clear(vals)
		if err := st.rows.Scan(ptrs...); err != nil {
			st.Reset(n)
			st.SetStatus(n, sqltypes.RowError)
			recs = append(recs, backend.DiagRecord{State: stateConversion, Message: err.Error()})
			failed++
			n++
			continue
		}
		status, err := st.Put(n, vals)
		if err != nil {
			recs = append(recs, backend.DiagRecord{State: stateConversion, Message: err.Error()})
			failed++
		}
		if status == sqltypes.RowSuccessWithInfo {
			truncated = true
		}
		st.SetStatus(n, status)
		n++
	}
	st.Finish(n)

	if n == 0 {
		if err := st.rows.Err(); err != nil {
			return d.fail(h, diagRecord(err))
		}
		return backend.NoData
	}
	if truncated {
		recs = append(recs, backend.DiagRecord{State: stateTruncated, Message: "string data, right truncated"})
	}
	d.diags.Set(h, recs...)
	switch {
	case failed == n:
		return backend.Error
	case failed > 0 || truncated:
		return backend.SuccessWithInfo
	}
	return backend.Success
}

// CloseCursor closes the open result.
func (d *Driver) CloseCursor(h backend.Handle) backend.Return {
	st, ok := d.stmt(h)
	if !ok {
		return backend.InvalidHandle
	}
	if st.rows == nil {
		return d.fail(h, backend.DiagRecord{State: stateInvalidCursor, Message: "invalid cursor state, no result set"})
	}
	err := st.rows.Close()
	st.rows, st.infos, st.names = nil, nil, nil
	if err != nil {
		return d.fail(h, diagRecord(err))
	}
	return backend.Success
}

// RowCount returns the rows affected by the last non-query statement, -1 for queries.
func (d *Driver) RowCount(h backend.Handle) (int64, backend.Return) {
	st, ok := d.stmt(h)
	if !ok {
		return 0, backend.InvalidHandle
	}
	return st.rowCount, backend.Success
}

// DiagRec returns a diagnostic record of a handle.
func (d *Driver) DiagRec(_ backend.HandleKind, h backend.Handle, rec int) (backend.DiagRecord, backend.Return) {
	return d.diags.Get(h, rec)
}

func (d *Driver) stmt(h backend.Handle) (*stmt, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.stmts[h]
	return st, ok
}

func (d *Driver) fail(h backend.Handle, rec backend.DiagRecord) backend.Return {
	log.Printf("[DEBUG] sqldb handle %d: %s", h, rec)
	d.diags.Set(h, rec)
	return backend.Error
}

// handle makes the next handle, caller holds the lock.
func (d *Driver) handle() backend.Handle {
	d.next++
	return d.next
}

// isQuery reports whether a statement returns rows, judged by its first keyword.
func isQuery(query string) bool {
	q := strings.TrimLeft(query, " \t\r\n(")
	for strings.HasPrefix(q, "--") { // skip leading line comments
		idx := strings.IndexByte(q, '\n')
		if idx < 0 {
			return false
		}
		q = strings.TrimLeft(q[idx+1:], " \t\r\n(")
	}
	end := strings.IndexFunc(q, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ';' })
	if end >= 0 {
		q = q[:end]
	}
	kw := strings.ToUpper(q)
	for _, k := range queryKeywords {
		if kw == k {
			return true
		}
	}
	return false
}
