package fall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_PushEvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 3, b.Cap())

	b.Push(1)
	b.Push(2)
	assert.Equal(t, []float64{1, 2}, b.Samples())

	b.Push(3)
	b.Push(4)
	b.Push(5)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []float64{3, 4, 5}, b.Samples())
}

func TestBuffer_RecentStatsUsesNewestSamples(t *testing.T) {
	b := NewBuffer(5)
	for _, v := range []float64{100, 100, 100, 2, 4, 6} {
		b.Push(v)
	}

	st, err := b.RecentStats(3)
	require.NoError(t, err)
	assert.Equal(t, 3, st.N)
	assert.InDelta(t, 4.0, st.Mean, 1e-12)
	// population stddev of {2,4,6}
	assert.InDelta(t, 1.632993161855452, st.StdDev, 1e-12)
}

func TestBuffer_RecentStatsWrapsAround(t *testing.T) {
	b := NewBuffer(4)
	for _, v := range []float64{1, 2, 3, 4, 5, 6} {
		b.Push(v)
	}
	st, err := b.RecentStats(4)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, st.Mean, 1e-12)
}

func TestBuffer_RecentStatsInsufficientHistory(t *testing.T) {
	b := NewBuffer(30)
	for i := 0; i < 9; i++ {
		b.Push(9.8)
	}
	_, err := b.RecentStats(10)
	require.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = b.RecentStats(0)
	require.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = b.RecentStats(31)
	require.ErrorIs(t, err, ErrInsufficientHistory)

	b.Push(9.8)
	st, err := b.RecentStats(10)
	require.NoError(t, err)
	assert.InDelta(t, 9.8, st.Mean, 1e-9)
	assert.InDelta(t, 0, st.StdDev, 1e-9)
}
