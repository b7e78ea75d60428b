package cursor

import (
	"bytes"
	"fmt"
	"log"

	"github.com/umputun/rowbatch/pkg/backend"
)

// describe builds the row batch for the current result set: one descriptor and one bound buffer per
// column. On failure every buffer allocated so far is dropped and the statement is unbound.
func (c *Cursor) describe() error {
	n, ret := c.drv.NumResultCols(c.h)
	if err := check(c.drv, "NumResultCols", ret, backend.HandleStmt, c.h); err != nil {
		return fmt.Errorf("can't get number of result columns: %w", err)
	}
	if n <= 0 {
		return nil
	}

	b := newRowBatch(c.batchSize)
	fail := func(err error) error {
		if ret := c.drv.Unbind(c.h); !ret.Succeeded() {
			log.Printf("[DEBUG] unbind after failed describe: %s", ret)
		}
		b.release()
		c.warnings = nil
		return err
	}

	name := make([]byte, maxNameLen)
	for ordinal := 1; ordinal <= n; ordinal++ {
		clear(name)
		info, ret := c.drv.DescribeCol(c.h, ordinal, name)
		if err := check(c.drv, "DescribeCol", ret, backend.HandleStmt, c.h); err != nil {
			return fail(fmt.Errorf("can't describe column %d: %w", ordinal, err))
		}
		captured := name[:min(max(info.NameLen, 0), len(name))]
		if i := bytes.IndexByte(captured, 0); i >= 0 {
			captured = captured[:i]
		}
		if info.NameLen > len(name) {
			w := &NameTruncatedError{Ordinal: ordinal, Name: string(captured), Length: info.NameLen, Capacity: len(name)}
			log.Printf("[WARN] %v", w)
			c.warnings = append(c.warnings, w)
		}

		col := b.add(string(captured), info)
		ret = c.drv.BindCol(c.h, ordinal, col.Layout.Target, col.buf, col.Layout.Width, col.ind)
		if err := check(c.drv, "BindCol", ret, backend.HandleStmt, c.h); err != nil {
			return fail(fmt.Errorf("can't bind column %d: %w", ordinal, err))
		}
	}
	c.batch = b
	return nil
}
