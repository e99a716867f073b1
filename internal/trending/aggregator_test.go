package trending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTop_OrdersByClicksDescending(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 3; i++ {
		agg.Record("x")
	}
	agg.Record("y")

	top := agg.Top(10)

	require.Len(t, top, 2)
	assert.Equal(t, Entry{ShortCode: "x", TotalClicks: 3, Rank: 1}, top[0])
	assert.Equal(t, Entry{ShortCode: "y", TotalClicks: 1, Rank: 2}, top[1])
}

func TestTop_TieBreaksByShortCodeAscending(t *testing.T) {
	agg := NewAggregator()
	agg.Record("zzz")
	agg.Record("aaa")
	agg.Record("mmm")

	top := agg.Top(10)

	require.Len(t, top, 3)
	assert.Equal(t, "aaa", top[0].ShortCode)
	assert.Equal(t, "mmm", top[1].ShortCode)
	assert.Equal(t, "zzz", top[2].ShortCode)
}

func TestTop_RanksAreGapless(t *testing.T) {
	agg := NewAggregator()
	codes := []string{"a", "b", "c", "d", "e"}
	for i, code := range codes {
		for j := 0; j <= i; j++ {
			agg.Record(code)
		}
	}

	top := agg.Top(len(codes))

	require.Len(t, top, len(codes))
	for i, entry := range top {
		assert.Equal(t, i+1, entry.Rank)
	}
}

func TestTop_RespectsLimit(t *testing.T) {
	agg := NewAggregator()
	for _, code := range []string{"a", "b", "c", "d"} {
		agg.Record(code)
	}

	assert.Len(t, agg.Top(2), 2)
	assert.Len(t, agg.Top(0), 0)
	assert.Len(t, agg.Top(100), 4)
}

func TestTop_DeterministicAcrossCalls(t *testing.T) {
	agg := NewAggregator()
	agg.Record("tie1")
	agg.Record("tie2")
	agg.Record("tie3")

	first := agg.Top(10)
	second := agg.Top(10)

	assert.Equal(t, first, second)
}

func TestRecord_DuplicateDeliveriesCountAgain(t *testing.T) {
	// At-least-once delivery: a redelivered message increments again.
	agg := NewAggregator()
	agg.Record("dup")
	agg.Record("dup")

	top := agg.Top(1)
	require.Len(t, top, 1)
	assert.Equal(t, int64(2), top[0].TotalClicks)
}

func TestTop_EmptyAggregator(t *testing.T) {
	assert.Empty(t, NewAggregator().Top(10))
}
