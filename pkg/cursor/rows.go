package cursor

// FetchOne returns the next row of the result set, fetching the next batch once the current one is
// used up. It returns nil without error when the result set is exhausted. A failed row returns a
// *RowError and the following call moves on to the next row.
func (c *Cursor) FetchOne() ([]Value, error) {
	if c.state == Closed || c.h == 0 {
		return nil, ErrCursorUnavailable
	}
	if c.state != Opened || c.batch == nil {
		return nil, ErrNoActiveResultSet
	}
	if c.batch.next >= c.batch.fetched {
		if c.batch.done {
			return nil, nil
		}
		res, err := c.Fetch()
		if err != nil {
			return nil, err
		}
		if res.Exhausted || res.Delivered == 0 {
			c.batch.done = true
			return nil, nil
		}
	}
	row := c.batch.next
	c.batch.next++
	return c.Row(row)
}

// FetchMany returns up to n rows, RowBatchSize rows if n < 1. Fewer rows mean the result set is
// exhausted. On error the rows read so far are returned with it.
func (c *Cursor) FetchMany(n int) ([][]Value, error) {
	if n < 1 {
		n = c.batchSize
	}
	res := make([][]Value, 0, n)
	for len(res) < n {
		row, err := c.FetchOne()
		if err != nil {
			return res, err
		}
		if row == nil {
			break
		}
		res = append(res, row)
	}
	return res, nil
}

// FetchAll returns all remaining rows.
func (c *Cursor) FetchAll() ([][]Value, error) {
	var res [][]Value
	for {
		row, err := c.FetchOne()
		if err != nil {
			return res, err
		}
		if row == nil {
			return res, nil
		}
		res = append(res, row)
	}
}
