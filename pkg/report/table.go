package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/olekukonko/tablewriter"

	"github.com/umputun/rowbatch/pkg/cursor"
)

// Table collects rows of each query and renders them as a text table when the query ends.
// Queries running concurrently do not interleave.
type Table struct {
	mu      sync.Mutex
	wr      io.Writer
	width   int
	secrets []string
	tables  map[string]*pending
}

type pending struct {
	header []string
	rows   [][]string
}

// NewTable makes a Table printer, width limits cell values in runes, 0 means unlimited.
func NewTable(wr io.Writer, width int, secrets []string) *Table {
	return &Table{wr: wr, width: width, secrets: secrets, tables: map[string]*pending{}}
}

// Begin starts collecting rows of the query
func (t *Table) Begin(query string, cols []cursor.Description) error {
	p := &pending{header: make([]string, len(cols))}
	for i, c := range cols {
		p.header[i] = c.Name
	}
	t.mu.Lock()
	t.tables[query] = p
	t.mu.Unlock()
	return nil
}

// Rows adds fetched rows to the pending table
func (t *Table) Rows(query string, rows [][]cursor.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.tables[query]
	if !ok {
		return fmt.Errorf("rows of %s before begin", query)
	}
	for _, row := range rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = maskSecrets(formatValue(v, t.width), t.secrets)
		}
		p.rows = append(p.rows, line)
	}
	return nil
}

// End renders the collected table followed by the summary line
func (t *Table) End(query string, rows int, rowCount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, hasCols := t.tables[query]
	delete(t.tables, query)

	if _, err := fmt.Fprintf(t.wr, "%s:\n", query); err != nil {
		return fmt.Errorf("can't write table of %s: %w", query, err)
	}
	if hasCols {
		tw := tablewriter.NewWriter(t.wr)
		tw.SetHeader(p.header)
		tw.SetAutoFormatHeaders(false)
		tw.SetAutoWrapText(false)
		tw.AppendBulk(p.rows)
		tw.Render()
	}
	if _, err := fmt.Fprintf(t.wr, "%s\n", summary(hasCols, rows, rowCount)); err != nil {
		return fmt.Errorf("can't write table of %s: %w", query, err)
	}
	return nil
}
