package report

import (
	"fmt"
	"hash/crc32"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/umputun/rowbatch/pkg/cursor"
)

// Lines prints every fetched row as a single `[query] col=value ...` line, colorized by query name.
// It is safe for concurrent use by several queries.
type Lines struct {
	mu         sync.Mutex
	wr         io.Writer
	width      int
	secrets    []string
	monochrome bool
	columns    map[string][]string
}

// NewLines makes a Lines printer. Values longer than width runes are cut, width 0 keeps them whole.
func NewLines(wr io.Writer, width int, monochrome bool, secrets []string) *Lines {
	return &Lines{wr: wr, width: width, monochrome: monochrome, secrets: secrets, columns: map[string][]string{}}
}

// Begin remembers column names of the query
func (l *Lines) Begin(query string, cols []cursor.Description) error {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	l.mu.Lock()
	l.columns[query] = names
	l.mu.Unlock()
	return nil
}

// Rows writes one line per row
func (l *Lines) Rows(query string, rows [][]cursor.Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := l.columns[query]
	colorizer := l.colorizer(query)
	for _, row := range rows {
		parts := make([]string, 0, len(row))
		for i, v := range row {
			name := fmt.Sprintf("#%d", i+1)
			if i < len(names) && names[i] != "" {
				name = names[i]
			}
			parts = append(parts, name+"="+formatValue(v, l.width))
		}
		line := maskSecrets(fmt.Sprintf("[%s] %s", query, strings.Join(parts, " ")), l.secrets)
		if _, err := io.WriteString(l.wr, colorizer("%s\n", line)); err != nil {
			return fmt.Errorf("can't write row of %s: %w", query, err)
		}
	}
	return nil
}

// End writes the summary line of the query
func (l *Lines) End(query string, rows int, rowCount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, hasCols := l.columns[query]
	delete(l.columns, query)
	line := fmt.Sprintf("[%s] %s", query, summary(hasCols, rows, rowCount))
	if _, err := io.WriteString(l.wr, l.colorizer(query)("%s\n", line)); err != nil {
		return fmt.Errorf("can't write summary of %s: %w", query, err)
	}
	return nil
}

// colorizer picks a stable color for the query name
func (l *Lines) colorizer(query string) func(format string, a ...any) string {
	colors := []color.Attribute{
		color.FgHiRed, color.FgHiGreen, color.FgHiYellow,
		color.FgHiBlue, color.FgHiMagenta, color.FgHiCyan,
		color.FgRed, color.FgGreen, color.FgYellow,
		color.FgBlue, color.FgMagenta, color.FgCyan,
	}
	c := colors[crc32.ChecksumIEEE([]byte(query))%uint32(len(colors))]
	if l.monochrome {
		c = color.Reset
	}
	return color.New(c).SprintfFunc()
}

