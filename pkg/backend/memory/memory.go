// Package memory implements a scripted in-process backend. Statements are registered with their result
// up front; executing anything else fails like a syntax error. Made for tests, not for production use.
package memory

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/go-pkgz/stringutils"

	"github.com/umputun/rowbatch/pkg/backend"
	"github.com/umputun/rowbatch/pkg/sqltypes"
)

// Column describes a scripted result column.
type Column struct {
	Name          string
	Type          sqltypes.Code
	Size          int
	DecimalDigits int
	Nullable      bool
}

// Result is the scripted outcome of a statement. A result with columns produces rows;
// a result without columns reports RowsAffected. If Fail is set, execution fails with it.
type Result struct {
	Columns      []Column
	Rows         [][]any
	RowsAffected int64
	Fail         *backend.DiagRecord
}

type injection struct {
	after int
	rec   backend.DiagRecord
}

type stmt struct {
	*backend.StmtState
	conn     backend.Handle
	result   *Result
	pos      int
	open     bool
	rowCount int64
}

// Driver is the in-memory backend.
type Driver struct {
	mu      sync.Mutex
	next    backend.Handle
	envs    map[backend.Handle]bool
	conns   map[backend.Handle]string
	stmts   map[backend.Handle]*stmt
	scripts map[string]Result
	inject  map[string]*injection
	calls   map[string]int
	diags   backend.Diagnostics
}

// New makes an empty in-memory backend.
func New() *Driver {
	return &Driver{
		envs:    map[backend.Handle]bool{},
		conns:   map[backend.Handle]string{},
		stmts:   map[backend.Handle]*stmt{},
		scripts: map[string]Result{},
		inject:  map[string]*injection{},
		calls:   map[string]int{},
	}
}

// Register scripts the result of a statement. Statements are matched ignoring surrounding
// whitespace, repeated whitespace and a trailing semicolon.
func (d *Driver) Register(query string, res Result) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[normalize(query)] = res
	return d
}

// Inject makes the call named op fail with rec once it has succeeded after times. For example
// Inject("BindCol", 2, rec) lets two BindCol calls pass and fails the third.
func (d *Driver) Inject(op string, after int, rec backend.DiagRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inject[op] = &injection{after: after, rec: rec}
}

// Calls returns how many times op was called.
func (d *Driver) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Open returns the number of live statement handles.
func (d *Driver) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stmts)
}

// Bound returns the number of column buffers bound on a statement.
func (d *Driver) Bound(h backend.Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.stmts[h]; ok {
		return len(st.Bindings)
	}
	return 0
}

// AllocEnv makes a new environment handle.
func (d *Driver) AllocEnv() (backend.Handle, backend.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ret := d.enter("AllocEnv", 0); ret != backend.Success {
		return 0, ret
	}
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
	return backend.Success
}

// Connect accepts any connection string for a known environment.
func (d *Driver) Connect(env backend.Handle, connStr string) (backend.Handle, backend.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.envs[env] {
		return 0, backend.InvalidHandle
	}
	if ret := d.enter("Connect", env); ret != backend.Success {
		return 0, ret
	}
	h := d.handle()
	d.conns[h] = connStr
	log.Printf("[DEBUG] memory backend connected, handle %d", h)
	return h, backend.Success
}

// Disconnect drops a connection handle.
func (d *Driver) Disconnect(conn backend.Handle) backend.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.conns[conn]; !ok {
		return backend.InvalidHandle
	}
	delete(d.conns, conn)
	return backend.Success
}

// AllocStmt makes a statement on a connection.
func (d *Driver) AllocStmt(conn backend.Handle) (backend.Handle, backend.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.conns[conn]; !ok {
		return 0, backend.InvalidHandle
	}
	if ret := d.enter("AllocStmt", conn); ret != backend.Success {
		return 0, ret
	}
	h := d.handle()
	d.stmts[h] = &stmt{StmtState: backend.NewStmtState(), conn: conn, rowCount: -1}
	return h, backend.Success
}

// FreeStmt drops a statement handle.
func (d *Driver) FreeStmt(h backend.Handle) backend.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.stmts[h]; !ok {
		return backend.InvalidHandle
	}
	d.calls["FreeStmt"]++
	delete(d.stmts, h)
	d.diags.Clear(h)
	return backend.Success
}

// SetStmtAttr sets a statement attribute.
func (d *Driver) SetStmtAttr(h backend.Handle, attr backend.StmtAttr, value any) backend.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret := d.stmt("SetStmtAttr", h)
	if ret != backend.Success {
		return ret
	}
	if err := st.SetAttr(attr, value); err != nil {
		return d.fail(h, "HY024", err.Error())
	}
	return backend.Success
}

// ExecDirect runs a registered statement.
func (d *Driver) ExecDirect(h backend.Handle, query string) backend.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret := d.stmt("ExecDirect", h)
	if ret != backend.Success {
		return ret
	}
	if st.open {
		return d.fail(h, "24000", "invalid cursor state")
	}
	res, ok := d.scripts[normalize(query)]
	if !ok {
		return d.fail(h, "42000", fmt.Sprintf("syntax error or access violation near %q", stringutils.Truncate(query, 40)))
	}
	if res.Fail != nil {
		d.diags.Set(h, *res.Fail)
		return backend.Error
	}
	st.result, st.pos, st.rowCount = &res, 0, -1
	st.open = len(res.Columns) > 0
	if !st.open {
		st.rowCount = res.RowsAffected
	}
	return backend.Success
}

// NumResultCols returns the number of columns of the current result.
func (d *Driver) NumResultCols(h backend.Handle) (int, backend.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret := d.stmt("NumResultCols", h)
	if ret != backend.Success {
		return 0, ret
	}
	if st.result == nil {
		return 0, backend.Success
	}
	return len(st.result.Columns), backend.Success
}

// DescribeCol reports a column of the current result.
func (d *Driver) DescribeCol(h backend.Handle, ordinal int, name []byte) (backend.ColumnInfo, backend.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret := d.stmt("DescribeCol", h)
	if ret != backend.Success {
		return backend.ColumnInfo{}, ret
	}
	if st.result == nil || ordinal < 1 || ordinal > len(st.result.Columns) {
		return backend.ColumnInfo{}, d.fail(h, "07009", fmt.Sprintf("invalid descriptor index %d", ordinal))
	}
	col := st.result.Columns[ordinal-1]
	copy(name, col.Name)
	nullable := backend.NoNulls
	if col.Nullable {
		nullable = backend.Nullable
	}
	return backend.ColumnInfo{NameLen: len(col.Name), Type: col.Type, Size: col.Size,
		DecimalDigits: col.DecimalDigits, Nullable: nullable}, backend.Success
}

// BindCol registers an output buffer.
func (d *Driver) BindCol(h backend.Handle, ordinal int, target sqltypes.Target, buf []byte, width int, ind []int64) backend.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret := d.stmt("BindCol", h)
	if ret != backend.Success {
		return ret
	}
	if err := st.Bind(ordinal, backend.Binding{Target: target, Buf: buf, Width: width, Ind: ind}); err != nil {
		return d.fail(h, "HY090", err.Error())
	}
	return backend.Success
}

// Unbind drops all bound buffers.
func (d *Driver) Unbind(h backend.Handle) backend.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret := d.stmt("Unbind", h)
	if ret != backend.Success {
		return ret
	}
	st.Bindings = map[int]backend.Binding{}
	return backend.Success
}

// Fetch delivers the next batch of scripted rows into the bound buffers.
func (d *Driver) Fetch(h backend.Handle) backend.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret := d.stmt("Fetch", h)
	if ret != backend.Success {
		return ret
	}
	if !st.open {
		return d.fail(h, "24000", "invalid cursor state")
	}
	if st.pos >= len(st.result.Rows) {
		st.Finish(0)
		return backend.NoData
	}

	n, failed, truncated := 0, 0, false
	var recs []backend.DiagRecord
	for n < st.ArraySize && st.pos < len(st.result.Rows) {
		status, err := st.Put(n, st.result.Rows[st.pos])
		if err != nil {
			failed++
			recs = append(recs, backend.DiagRecord{State: "22018", Message: fmt.Sprintf("row %d: %v", st.pos+1, err)})
		}
		if status == sqltypes.RowSuccessWithInfo {
			truncated = true
		}
		st.SetStatus(n, status)
		st.pos++
		n++
	}
	st.Finish(n)

	if truncated {
		recs = append(recs, backend.DiagRecord{State: "01004", Message: "string data, right truncated"})
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

// CloseCursor discards the rest of the current result.
func (d *Driver) CloseCursor(h backend.Handle) backend.Return {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret := d.stmt("CloseCursor", h)
	if ret != backend.Success {
		return ret
	}
	if !st.open {
		return d.fail(h, "24000", "invalid cursor state")
	}
	st.open = false
	return backend.Success
}

// RowCount returns rows affected by the last statement, -1 if not applicable.
func (d *Driver) RowCount(h backend.Handle) (int64, backend.Return) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ret := d.stmt("RowCount", h)
	if ret != backend.Success {
		return 0, ret
	}
	return st.rowCount, backend.Success
}

// DiagRec returns a diagnostic record of a handle.
func (d *Driver) DiagRec(_ backend.HandleKind, h backend.Handle, rec int) (backend.DiagRecord, backend.Return) {
	d.mu.Lock()
	d.calls["DiagRec"]++
	d.mu.Unlock()
	return d.diags.Get(h, rec)
}

// stmt counts the call, applies injected failures and resolves the statement. Caller holds the lock.
func (d *Driver) stmt(op string, h backend.Handle) (*stmt, backend.Return) {
	st, ok := d.stmts[h]
	if !ok {
		d.calls[op]++
		return nil, backend.InvalidHandle
	}
	if ret := d.enter(op, h); ret != backend.Success {
		return nil, ret
	}
	return st, backend.Success
}

// enter counts a call and fires an injected failure if one is due. Caller holds the lock.
func (d *Driver) enter(op string, h backend.Handle) backend.Return {
	d.calls[op]++
	inj, ok := d.inject[op]
	if !ok {
		return backend.Success
	}
	if inj.after > 0 {
		inj.after--
		return backend.Success
	}
	delete(d.inject, op)
	if h != 0 {
		d.diags.Set(h, inj.rec)
	}
	return backend.Error
}

func (d *Driver) fail(h backend.Handle, state, msg string) backend.Return {
	d.diags.Set(h, backend.DiagRecord{State: state, Message: msg})
	return backend.Error
}

func (d *Driver) handle() backend.Handle {
	d.next++
	return d.next
}

func normalize(query string) string {
	return strings.TrimSpace(strings.TrimSuffix(stringutils.NormalizeWhitespace(query), ";"))
}
