package cells

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimal(t *testing.T) {
	cases := map[string]string{
		"12.5":       "12.5",
		" 0,1740 ":   "0.174",
		"1 234,50":   "1234.5",
		"1\u00a0234": "1234",
		"1.234,5":    "1234.5",
		"1,234.5":    "1234.5",
		"-3":         "-3",
	}
	for raw, want := range cases {
		got, err := Decimal(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got.String(), raw)
	}

	_, err := Decimal("  ")
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Decimal("abc")
	assert.Error(t, err)
}

func TestDay(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2024-01-15", "15/01/2024", "45306", "2024-01-15T10:00:00Z", "2024-01-15 23:59:59"} {
		got, err := Day(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%s parsed as %s", raw, got)
	}

	_, err := Day("")
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Day("next tuesday")
	assert.Error(t, err)
}

func TestTimestamp(t *testing.T) {
	got, err := Timestamp("2024-03-31T02:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 30, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())

	got, err = Timestamp("2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), got)
}

func TestHeaderAndAt(t *testing.T) {
	index := Header([]string{"\ufeffCONTRAT", " PUHT ", "", "PUHT"})
	assert.Equal(t, map[string]int{"CONTRAT": 0, "PUHT": 1}, index)

	row := []string{" a ", "b"}
	assert.Equal(t, "a", At(row, 0))
	assert.Equal(t, "", At(row, 5))
	assert.True(t, Blank([]string{" ", ""}))
	assert.False(t, Blank(row))
}
