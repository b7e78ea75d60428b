package sqltypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tbl := []struct {
		name string
		code Code
		size int
		want Layout
	}{
		{"char", Char, 10, Layout{Target: Text, Width: 11, Display: 10}},
		{"varchar 50", VarChar, 50, Layout{Target: Text, Width: 51, Display: 50}},
		{"longvarchar", LongVarChar, 4096, Layout{Target: Text, Width: 4097, Display: 4096}},
		{"wchar", WChar, 3, Layout{Target: WideText, Width: 8, Display: 3}},
		{"wvarchar", WVarChar, 12, Layout{Target: WideText, Width: 26, Display: 12}},
		{"wlongvarchar", WLongVarChar, 0, Layout{Target: WideText, Width: 2, Display: 0}},
		{"tinyint", TinyInt, 3, Layout{Target: Int8, Width: 1, Display: 4}},
		{"smallint", SmallInt, 5, Layout{Target: Int16, Width: 2, Display: 6}},
		{"integer", Integer, 10, Layout{Target: Int32, Width: 4, Display: 11}},
		{"bigint", BigInt, 19, Layout{Target: Int64, Width: 8, Display: 20}},
		{"real", Real, 24, Layout{Target: Double64, Width: 8, Display: 24}},
		{"float", Float, 53, Layout{Target: Double64, Width: 8, Display: 24}},
		{"double", Double, 15, Layout{Target: Double64, Width: 8, Display: 24}},
		{"decimal", Decimal, 5, Layout{Target: Text, Width: 7, Display: 6}},
		{"numeric 38", Numeric, 38, Layout{Target: Text, Width: 40, Display: 39}},
		{"date", TypeDate, 10, Layout{Target: Date, Width: DateSize, Display: 10}},
		{"timestamp", TypeTimestamp, 23, Layout{Target: Timestamp, Width: TimestampSize, Display: 23}},
		{"datetime small size", DateTime, 0, Layout{Target: Timestamp, Width: TimestampSize, Display: 19}},
		{"bit falls back to text", Bit, 1, Layout{Target: Text, Width: 2, Display: 1}},
		{"unknown code", Code(1234), 7, Layout{Target: Text, Width: 8, Display: 7}},
		{"negative size", VarChar, -5, Layout{Target: Text, Width: 1, Display: 0}},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.code, tt.size))
			assert.Equal(t, Resolve(tt.code, tt.size), Resolve(tt.code, tt.size), "must be deterministic")
		})
	}
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "VARCHAR", VarChar.String())
	assert.Equal(t, "TIMESTAMP", TypeTimestamp.String())
	assert.Equal(t, "TYPE(777)", Code(777).String())
	assert.Equal(t, "wide-text", WideText.String())
	assert.Equal(t, "no-row", RowNoRow.String())
}

func TestEncodeDecode_Text(t *testing.T) {
	lay := Resolve(VarChar, 5)
	buf := make([]byte, lay.Width)

	n, trunc, err := Encode(lay.Target, buf, "abc")
	require.NoError(t, err)
	assert.False(t, trunc)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{'a', 'b', 'c', 0}, buf[:4])
	v, err := Decode(lay.Target, buf, n)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	n, trunc, err = Encode(lay.Target, buf, "abcdefgh")
	require.NoError(t, err)
	assert.True(t, trunc)
	assert.Equal(t, 5, n)
	v, err = Decode(lay.Target, buf, -1)
	require.NoError(t, err)
	assert.Equal(t, "abcde", v)
}

func TestEncode_TextKeepsRunesWhole(t *testing.T) {
	buf := make([]byte, 5) // four data bytes
	n, trunc, err := Encode(Text, buf, "abcдe")
	require.NoError(t, err)
	assert.True(t, trunc)
	assert.Equal(t, 3, n, "two-byte rune must not be split")
	v, err := Decode(Text, buf, n)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestEncodeDecode_Wide(t *testing.T) {
	lay := Resolve(WVarChar, 12)
	buf := make([]byte, lay.Width)
	n, trunc, err := Encode(lay.Target, buf, "Hallo Ⓓⓘⓡⓚ!")
	require.NoError(t, err)
	assert.False(t, trunc)
	assert.Equal(t, 22, n)
	v, err := Decode(lay.Target, buf, n)
	require.NoError(t, err)
	assert.Equal(t, "Hallo Ⓓⓘⓡⓚ!", v)

	t.Run("surrogate pair is not split", func(t *testing.T) {
		small := make([]byte, Resolve(WChar, 2).Width) // room for two units
		n, trunc, err := Encode(WideText, small, "a😀")
		require.NoError(t, err)
		assert.True(t, trunc)
		assert.Equal(t, 2, n)
		v, err := Decode(WideText, small, -1)
		require.NoError(t, err)
		assert.Equal(t, "a", v)
	})

	t.Run("emoji fits", func(t *testing.T) {
		small := make([]byte, Resolve(WVarChar, 3).Width)
		n, _, err := Encode(WideText, small, "😀")
		require.NoError(t, err)
		v, err := Decode(WideText, small, n)
		require.NoError(t, err)
		assert.Equal(t, "😀", v)
	})
}

func TestEncodeDecode_Numbers(t *testing.T) {
	tbl := []struct {
		target Target
		in     any
		want   any
	}{
		{Int8, int64(-7), int64(-7)},
		{Int16, int64(32000), int64(32000)},
		{Int32, "42", int64(42)},
		{Int32, []byte(" 17 "), int64(17)},
		{Int64, int64(-9007199254740993), int64(-9007199254740993)},
		{Int64, true, int64(1)},
		{Double64, 12345.678, 12345.678},
		{Double64, []byte("3.5"), 3.5},
		{Double64, int64(2), 2.0},
	}
	for _, tt := range tbl {
		t.Run(tt.target.String(), func(t *testing.T) {
			buf := make([]byte, 8)
			n, trunc, err := Encode(tt.target, buf, tt.in)
			require.NoError(t, err)
			assert.False(t, trunc)
			v, err := Decode(tt.target, buf, n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEncode_IntOutOfRange(t *testing.T) {
	buf := make([]byte, 8)
	_, _, err := Encode(Int16, buf, int64(70000))
	require.ErrorIs(t, err, ErrConversion)
	_, _, err = Encode(Int32, buf, "not a number")
	require.ErrorIs(t, err, ErrConversion)
	_, _, err = Encode(Int64, buf, 1.5)
	require.ErrorIs(t, err, ErrConversion)
}

func TestEncodeDecode_Temporal(t *testing.T) {
	buf := make([]byte, TimestampSize)
	ts := time.Date(2016, 12, 25, 14, 42, 7, 123456000, time.UTC)

	n, _, err := Encode(Timestamp, buf, ts)
	require.NoError(t, err)
	assert.Equal(t, TimestampSize, n)
	v, err := Decode(Timestamp, buf, n)
	require.NoError(t, err)
	assert.Equal(t, ts, v)

	n, _, err = Encode(Timestamp, buf, "2013-04-18 22:07:42")
	require.NoError(t, err)
	v, err = Decode(Timestamp, buf, n)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2013, 4, 18, 22, 7, 42, 0, time.UTC), v)

	dbuf := make([]byte, DateSize)
	n, _, err = Encode(Date, dbuf, "1986-01-28")
	require.NoError(t, err)
	assert.Equal(t, DateSize, n)
	v, err = Decode(Date, dbuf, n)
	require.NoError(t, err)
	assert.Equal(t, time.Date(1986, 1, 28, 0, 0, 0, 0, time.UTC), v)

	_, _, err = Encode(Date, dbuf, "yesterday")
	require.ErrorIs(t, err, ErrConversion)
}

func TestEncodeDecode_TemporalZones(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	buf := make([]byte, TimestampSize)

	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, cet)
	n, _, err := Encode(Timestamp, buf, ts)
	require.NoError(t, err)
	v, err := Decode(Timestamp, buf, n)
	require.NoError(t, err)
	decoded, ok := v.(time.Time)
	require.True(t, ok)
	assert.True(t, ts.Equal(decoded), "same instant, got %v", decoded)
	assert.Equal(t, 9, decoded.Hour())

	n, _, err = Encode(Timestamp, buf, "2024-01-01 00:30:00+02:00")
	require.NoError(t, err)
	v, err = Decode(Timestamp, buf, n)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 31, 22, 30, 0, 0, time.UTC), v)

	dbuf := make([]byte, DateSize)
	n, _, err = Encode(Date, dbuf, time.Date(2024, 3, 1, 0, 0, 0, 0, cet))
	require.NoError(t, err)
	v, err = Decode(Date, dbuf, n)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), v, "dates keep the calendar day")
}

func TestEncode_TextFromValues(t *testing.T) {
	buf := make([]byte, 32)
	tbl := []struct {
		in   any
		want string
	}{
		{int64(42), "42"},
		{3.14, "3.14"},
		{true, "1"},
		{[]byte("12345.678"), "12345.678"},
		{time.Date(2016, 1, 28, 0, 0, 0, 0, time.UTC), "2016-01-28"},
		{time.Date(2016, 1, 28, 11, 42, 7, 0, time.UTC), "2016-01-28 11:42:07"},
	}
	for _, tt := range tbl {
		n, _, err := Encode(Text, buf, tt.in)
		require.NoError(t, err)
		v, err := Decode(Text, buf, n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v)
	}
}
