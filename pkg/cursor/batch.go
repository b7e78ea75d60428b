package cursor

import (
	"github.com/umputun/rowbatch/pkg/backend"
)

// rowBatch owns the array-of-rows storage of every column of one result set.
// It lives from a successful describe until the next execute or close.
type rowBatch struct {
	size    int
	columns []*Column // index is ordinal-1
	fetched int       // rows delivered by the last fetch
	next    int       // next row handed out by FetchOne
	done    bool      // the backend reported the end of the result set
}

func newRowBatch(size int) *rowBatch {
	return &rowBatch{size: size}
}

// add allocates the buffers of the next column.
func (b *rowBatch) add(name string, info backend.ColumnInfo) *Column {
	col := newColumn(len(b.columns)+1, name, info, b.size)
	b.columns = append(b.columns, col)
	return col
}

// column returns the descriptor for a 1-based ordinal.
func (b *rowBatch) column(ordinal int) (*Column, bool) {
	if ordinal < 1 || ordinal > len(b.columns) {
		return nil, false
	}
	return b.columns[ordinal-1], true
}

// release drops all buffers, nothing stays reachable through the batch afterwards.
func (b *rowBatch) release() {
	for _, c := range b.columns {
		c.release()
	}
	b.columns, b.fetched, b.next, b.done = nil, 0, 0, false
}
