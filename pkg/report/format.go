package report

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-pkgz/stringutils"

	"github.com/umputun/rowbatch/pkg/cursor"
)

const truncatedMark = "…(truncated)"

// formatValue renders a cell, cutting it to width runes if width > 0
func formatValue(v cursor.Value, width int) string {
	s := v.String()
	if t, ok := v.V.(time.Time); ok && !v.Null {
		s = t.Format("2006-01-02 15:04:05.999999")
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			s = t.Format("2006-01-02")
		}
	}
	if width > 0 {
		s = stringutils.Truncate(s, width)
	}
	if v.Truncated {
		s += truncatedMark
	}
	return s
}

func summary(hasCols bool, rows int, rowCount int64) string {
	if !hasCols {
		if rowCount < 0 {
			return "done, affected rows unknown"
		}
		return fmt.Sprintf("done, %d rows affected", rowCount)
	}
	return fmt.Sprintf("done, %d rows", rows)
}

// maskSecrets replaces whole-word occurrences of secrets with ****
func maskSecrets(s string, secrets []string) string {
	for _, secret := range secrets {
		if stringutils.IsBlank(secret) {
			continue
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(secret) + `\b`)
		s = re.ReplaceAllString(s, "****")
	}
	return s
}

// FormatError makes a one-line message for a failed query. Backend failures show the error class
// and the SQLSTATE, anything else is returned as is.
func FormatError(query string, err error) string {
	var re *cursor.RowError
	if errors.As(err, &re) && re.Diag != nil {
		return fmt.Sprintf("%s: row %d failed [%s] %s", query, re.Row, re.Diag.State, re.Diag.Message)
	}
	var be *cursor.BackendError
	if !errors.As(err, &be) {
		return fmt.Sprintf("%s: %v", query, err)
	}
	if be.Diag == nil {
		return fmt.Sprintf("%s: %s, %s returned %s", query, be.Class(), be.Op, be.Return)
	}
	return fmt.Sprintf("%s: %s [%s] %s", query, be.Class(), be.Diag.State, be.Diag.Message)
}
