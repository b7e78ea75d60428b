package sqltypes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// ErrConversion is returned by Encode when a value can't be represented in the target layout.
var ErrConversion = errors.New("value conversion failed")

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339Nano,
}

// Encode writes value v into the element dst using the target representation. dst must be exactly one
// element wide. It returns the number of valid data bytes (excluding any terminator) and whether text had
// to be cut to fit. Text is always NUL terminated; integers, doubles, dates and timestamps are little-endian.
// Timestamps are stored in UTC, dates keep the calendar day of the value as given.
func Encode(target Target, dst []byte, v any) (n int, truncated bool, err error) {
	switch target {
	case Text:
		return encodeText(dst, toText(v))
	case WideText:
		return encodeWide(dst, toText(v))
	case Int8, Int16, Int32, Int64:
		return encodeInt(target, dst, v)
	case Double64:
		f, err := toFloat(v)
		if err != nil {
			return 0, false, err
		}
		if len(dst) < 8 {
			return 0, false, fmt.Errorf("element too small for double: %d", len(dst))
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
		return 8, false, nil
	case Date:
		t, err := toTime(v)
		if err != nil {
			return 0, false, err
		}
		if len(dst) < DateSize {
			return 0, false, fmt.Errorf("element too small for date: %d", len(dst))
		}
		putDate(dst, t)
		return DateSize, false, nil
	case Timestamp:
		t, err := toTime(v)
		if err != nil {
			return 0, false, err
		}
		if len(dst) < TimestampSize {
			return 0, false, fmt.Errorf("element too small for timestamp: %d", len(dst))
		}
		t = t.UTC()
		putDate(dst, t)
		binary.LittleEndian.PutUint16(dst[6:], uint16(t.Hour()))
		binary.LittleEndian.PutUint16(dst[8:], uint16(t.Minute()))
		binary.LittleEndian.PutUint16(dst[10:], uint16(t.Second()))
		binary.LittleEndian.PutUint32(dst[12:], uint32(t.Nanosecond()))
		return TimestampSize, false, nil
	}
	return 0, false, fmt.Errorf("unsupported target %s", target)
}

// Decode reads one element. n is the indicator length of the slot; a negative n means the length is
// unknown (truncated text) and the value runs to the terminator or the end of the element.
func Decode(target Target, src []byte, n int) (any, error) {
	switch target {
	case Text:
		if n < 0 || n > len(src) {
			n = textLen(src, 1)
		}
		return string(src[:n]), nil
	case WideText:
		if n < 0 || n > len(src) {
			n = textLen(src, WideUnit)
		}
		s, err := utf16le.NewDecoder().Bytes(src[:n])
		if err != nil {
			return nil, fmt.Errorf("can't decode wide text: %w", err)
		}
		return string(s), nil
	case Int8:
		return int64(int8(src[0])), nil
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(src))), nil
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(src))), nil
	case Int64:
		return int64(binary.LittleEndian.Uint64(src)), nil
	case Double64:
		return math.Float64frombits(binary.LittleEndian.Uint64(src)), nil
	case Date:
		y, m, d := getDate(src)
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case Timestamp:
		y, m, d := getDate(src)
		hh := int(binary.LittleEndian.Uint16(src[6:]))
		mm := int(binary.LittleEndian.Uint16(src[8:]))
		ss := int(binary.LittleEndian.Uint16(src[10:]))
		ns := int(binary.LittleEndian.Uint32(src[12:]))
		return time.Date(y, m, d, hh, mm, ss, ns, time.UTC), nil
	}
	return nil, fmt.Errorf("unsupported target %s", target)
}

func encodeText(dst []byte, s string) (int, bool, error) {
	if len(dst) == 0 {
		return 0, len(s) > 0, nil
	}
	capacity := len(dst) - 1
	truncated := false
	if len(s) > capacity {
		cut := capacity
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s, truncated = s[:cut], true
	}
	n := copy(dst, s)
	dst[n] = 0
	return n, truncated, nil
}

func encodeWide(dst []byte, s string) (int, bool, error) {
	enc, err := utf16le.NewEncoder().String(s)
	if err != nil {
		return 0, false, fmt.Errorf("can't encode wide text: %w", err)
	}
	if len(dst) < WideUnit {
		return 0, len(enc) > 0, nil
	}
	capacity := (len(dst) - WideUnit) &^ 1
	truncated := false
	if len(enc) > capacity {
		cut := capacity
		// never split a surrogate pair
		if cut >= WideUnit {
			last := binary.LittleEndian.Uint16([]byte(enc[cut-WideUnit : cut]))
			if last >= 0xD800 && last <= 0xDBFF {
				cut -= WideUnit
			}
		}
		enc, truncated = enc[:cut], true
	}
	n := copy(dst, enc)
	dst[n], dst[n+1] = 0, 0
	return n, truncated, nil
}

func encodeInt(target Target, dst []byte, v any) (int, bool, error) {
	i, err := toInt(v)
	if err != nil {
		return 0, false, err
	}
	switch target {
	case Int8:
		if i < math.MinInt8 || i > math.MaxInt8 {
			return 0, false, fmt.Errorf("%w: %d out of int8 range", ErrConversion, i)
		}
		dst[0] = byte(int8(i))
		return 1, false, nil
	case Int16:
		if i < math.MinInt16 || i > math.MaxInt16 {
			return 0, false, fmt.Errorf("%w: %d out of int16 range", ErrConversion, i)
		}
		binary.LittleEndian.PutUint16(dst, uint16(int16(i)))
		return 2, false, nil
	case Int32:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return 0, false, fmt.Errorf("%w: %d out of int32 range", ErrConversion, i)
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(i)))
		return 4, false, nil
	default:
		binary.LittleEndian.PutUint64(dst, uint64(i))
		return 8, false, nil
	}
}

// textLen finds the data length of a terminated text element with the given unit size
func textLen(src []byte, unit int) int {
	for i := 0; i+unit <= len(src); i += unit {
		zero := true
		for j := 0; j < unit; j++ {
			if src[i+j] != 0 {
				zero = false
				break
			}
		}
		if zero {
			return i
		}
	}
	return len(src) - len(src)%unit
}

func putDate(dst []byte, t time.Time) {
	binary.LittleEndian.PutUint16(dst[0:], uint16(int16(t.Year())))
	binary.LittleEndian.PutUint16(dst[2:], uint16(t.Month()))
	binary.LittleEndian.PutUint16(dst[4:], uint16(t.Day()))
}

func getDate(src []byte) (int, time.Month, int) {
	return int(int16(binary.LittleEndian.Uint16(src[0:]))),
		time.Month(binary.LittleEndian.Uint16(src[2:])),
		int(binary.LittleEndian.Uint16(src[4:]))
}

func toText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05.999999999")
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d out of int64 range", ErrConversion, val)
		}
		return int64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("%w: %v is not integral", ErrConversion, val)
		}
		return int64(val), nil
	case []byte:
		return parseInt(string(val))
	case string:
		return parseInt(val)
	}
	return 0, fmt.Errorf("%w: %T to integer", ErrConversion, v)
}

func parseInt(s string) (int64, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q to integer", ErrConversion, s)
	}
	return i, nil
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case []byte:
		return parseFloat(string(val))
	case string:
		return parseFloat(val)
	}
	return 0, fmt.Errorf("%w: %T to double", ErrConversion, v)
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q to double", ErrConversion, s)
	}
	return f, nil
}

func toTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case []byte:
		return parseTime(string(val))
	case string:
		return parseTime(val)
	}
	return time.Time{}, fmt.Errorf("%w: %T to time", ErrConversion, v)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q to time", ErrConversion, s)
}
