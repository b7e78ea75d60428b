package backend

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/rowbatch/pkg/sqltypes"
)

func TestStmtState_SetAttr(t *testing.T) {
	rows := 0
	tbl := []struct {
		name  string
		attr  StmtAttr
		value any
		err   bool
	}{
		{"cursor type", AttrCursorType, CursorStatic, false},
		{"cursor type wrong type", AttrCursorType, 3, true},
		{"array size", AttrRowArraySize, 10, false},
		{"array size zero", AttrRowArraySize, 0, true},
		{"rows fetched", AttrRowsFetched, &rows, false},
		{"rows fetched not a pointer", AttrRowsFetched, rows, true},
		{"row status", AttrRowStatusPtr, make([]sqltypes.RowStatus, 2), false},
		{"unknown attribute", StmtAttr(999), 1, true},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStmtState().SetAttr(tt.attr, tt.value)
			if tt.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStmtState_BindAndPut(t *testing.T) {
	st := NewStmtState()
	require.NoError(t, st.SetAttr(AttrRowArraySize, 2))
	var fetched int
	status := make([]sqltypes.RowStatus, 2)
	require.NoError(t, st.SetAttr(AttrRowsFetched, &fetched))
	require.NoError(t, st.SetAttr(AttrRowStatusPtr, status))

	assert.Error(t, st.Bind(0, Binding{Target: sqltypes.Int32, Buf: make([]byte, 8), Width: 4, Ind: make([]int64, 2)}))
	assert.Error(t, st.Bind(1, Binding{Target: sqltypes.Int32, Buf: make([]byte, 4), Width: 4, Ind: make([]int64, 2)}),
		"buffer for one row only")

	ids := Binding{Target: sqltypes.Int32, Buf: make([]byte, 8), Width: 4, Ind: make([]int64, 2)}
	names := Binding{Target: sqltypes.Text, Buf: make([]byte, 12), Width: 6, Ind: make([]int64, 2)}
	require.NoError(t, st.Bind(1, ids))
	require.NoError(t, st.Bind(2, names))

	rs, err := st.Put(0, []any{42, "bob"})
	require.NoError(t, err)
	assert.Equal(t, sqltypes.RowSuccess, rs)
	assert.Equal(t, int64(4), ids.Ind[0])
	assert.Equal(t, int64(3), names.Ind[0])

	rs, err = st.Put(1, []any{nil, "alexander"})
	require.NoError(t, err)
	assert.Equal(t, sqltypes.RowSuccessWithInfo, rs)
	assert.Equal(t, sqltypes.NullData, ids.Ind[1])
	assert.Equal(t, sqltypes.Truncated, names.Ind[1])
	assert.Equal(t, "alexa\x00", string(names.Buf[6:]))

	_, err = st.Put(0, []any{1})
	assert.Error(t, err, "column 2 bound, value missing")

	st.SetStatus(0, sqltypes.RowSuccess)
	st.SetStatus(5, sqltypes.RowError) // out of range, ignored
	st.Finish(1)
	assert.Equal(t, 1, fetched)
	assert.Equal(t, []sqltypes.RowStatus{sqltypes.RowSuccess, sqltypes.RowNoRow}, status)
}

func TestStmtState_PutFailedRow(t *testing.T) {
	st := NewStmtState()
	require.NoError(t, st.SetAttr(AttrRowArraySize, 2))
	ids := Binding{Target: sqltypes.Int32, Buf: make([]byte, 8), Width: 4, Ind: make([]int64, 2)}
	names := Binding{Target: sqltypes.Text, Buf: make([]byte, 16), Width: 8, Ind: make([]int64, 2)}
	counts := Binding{Target: sqltypes.Int32, Buf: make([]byte, 8), Width: 4, Ind: make([]int64, 2)}
	require.NoError(t, st.Bind(1, ids))
	require.NoError(t, st.Bind(2, names))
	require.NoError(t, st.Bind(3, counts))

	_, err := st.Put(1, []any{2, "first", 7})
	require.NoError(t, err)

	for i := 0; i < 20; i++ { // bindings are a map, make sure the order never matters
		rs, err := st.Put(1, []any{"bad", "r4", "worse"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "column 1:", "first failed ordinal reported")
		assert.Equal(t, sqltypes.RowError, rs)
		assert.Equal(t, int64(0), ids.Ind[1])
		assert.Equal(t, []byte{0, 0, 0, 0}, ids.Buf[4:])
		assert.Equal(t, int64(2), names.Ind[1], "good cells of a failed row are still written")
		assert.Equal(t, "r4\x00", string(names.Buf[8:11]))
		assert.Equal(t, int64(0), counts.Ind[1])
	}

	_, err = st.Put(0, []any{1, "alice", 3})
	require.NoError(t, err)
	st.Reset(0)
	assert.Equal(t, int64(0), ids.Ind[0])
	assert.Equal(t, int64(0), names.Ind[0])
	assert.Equal(t, make([]byte, 8), names.Buf[:8])
	assert.Equal(t, int64(2), names.Ind[1], "other rows untouched")
}

func TestDiagnostics(t *testing.T) {
	var d Diagnostics
	_, ret := d.Get(1, 1)
	assert.Equal(t, NoData, ret)

	d.Set(1, DiagRecord{State: "42S02", Native: 1146, Message: "table doesn't exist"},
		DiagRecord{State: "01000", Message: strings.Repeat("m", 300)})
	rec, ret := d.Get(1, 1)
	assert.Equal(t, Success, ret)
	assert.Equal(t, "[42S02:1146] table doesn't exist", rec.String())
	rec, ret = d.Get(1, 2)
	assert.Equal(t, Success, ret)
	assert.Len(t, rec.Message, MaxMessageLen)
	_, ret = d.Get(1, 3)
	assert.Equal(t, NoData, ret)
	_, ret = d.Get(1, 0)
	assert.Equal(t, NoData, ret)

	d.Set(2, DiagRecord{State: "22018", Message: strings.Repeat("é", 200)})
	rec, ret = d.Get(2, 1)
	assert.Equal(t, Success, ret)
	assert.Len(t, rec.Message, MaxMessageLen-1, "cut back to a rune boundary")
	assert.True(t, utf8.ValidString(rec.Message))

	d.Set(1, DiagRecord{State: "HY000"})
	rec, _ = d.Get(1, 1)
	assert.Equal(t, "HY000", rec.State)
	_, ret = d.Get(1, 2)
	assert.Equal(t, NoData, ret, "set replaces all records")

	d.Clear(1)
	_, ret = d.Get(1, 1)
	assert.Equal(t, NoData, ret)
}

func TestReturn(t *testing.T) {
	assert.True(t, Success.Succeeded())
	assert.True(t, SuccessWithInfo.Succeeded())
	assert.False(t, NoData.Succeeded())
	assert.False(t, Error.Succeeded())
	assert.Equal(t, "invalid-handle", InvalidHandle.String())
	assert.Equal(t, "return(7)", Return(7).String())
	assert.Equal(t, "stmt", HandleStmt.String())
}
