package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jagtrack/internal/interval"
)

func TestRecord_UnknownEntity(t *testing.T) {
	l := New()

	require.NoError(t, l.Record("p1", 0, 10))
	assert.False(t, l.Knows("p1"), "zero confidence must not open a tracker")

	require.NoError(t, l.Record("p1", 1, 20))
	last, ok := l.Latest("p1")
	require.True(t, ok)
	assert.True(t, last.IsOngoing())
	assert.Equal(t, int64(20), last.Period.Start)
}

func TestRecord_Transitions(t *testing.T) {
	l := New()
	require.NoError(t, l.Record("p1", 1, 100))
	require.NoError(t, l.Record("p1", 1, 110))
	require.Len(t, l.History("p1"), 1, "same confidence is a no-op")

	require.NoError(t, l.Record("p1", 0.5, 120))
	h := l.History("p1")
	require.Len(t, h, 2)
	assert.Equal(t, interval.Period{Start: 100, End: 120}, h[0].Period)
	assert.Equal(t, 0.5, h[1].Confidence)
	assert.True(t, h[1].IsOngoing())

	require.NoError(t, l.Record("p1", 0, 140))
	h = l.History("p1")
	require.Len(t, h, 2)
	assert.Equal(t, interval.Period{Start: 120, End: 140}, h[1].Period)

	require.NoError(t, l.Record("p1", 0, 150))
	assert.Len(t, l.History("p1"), 2, "zero on a closed tracker is a no-op")

	require.NoError(t, l.Record("p1", 1, 160))
	assert.Len(t, l.History("p1"), 3)
}

func TestRecord_ReopenAtCloseMerges(t *testing.T) {
	l := New()
	require.NoError(t, l.Record("p1", 1, 0))
	require.NoError(t, l.Record("p1", 0, 10))
	require.NoError(t, l.Record("p1", 1, 10))

	h := l.History("p1")
	require.Len(t, h, 1, "touching trackers of equal confidence are covered")
	assert.Equal(t, int64(0), h[0].Period.Start)
	assert.True(t, h[0].IsOngoing())
}

func TestRecord_Rejects(t *testing.T) {
	l := New()
	assert.ErrorIs(t, l.Record("p1", 1, -5), ErrNegativeTime)

	require.NoError(t, l.Record("p1", 1, 100))
	assert.ErrorIs(t, l.Record("p1", 0, 50), ErrOutOfOrder)

	require.NoError(t, l.Record("p1", 0, 140))
	assert.ErrorIs(t, l.Record("p1", 1, 139), ErrOutOfOrder)
}

func TestRecord_RejectsBeforeReopen(t *testing.T) {
	l := New()
	require.NoError(t, l.Record("p1", 1, 0))
	require.NoError(t, l.Record("p1", 0, 10))
	// Reopening at the close time folds back into one open tracker from 0.
	require.NoError(t, l.Record("p1", 1, 10))
	before := l.History("p1")

	assert.ErrorIs(t, l.Record("p1", 0, 5), ErrOutOfOrder)
	assert.Equal(t, before, l.History("p1"), "rejected report leaves history alone")

	require.NoError(t, l.Record("p1", 0, 30))
	assert.Equal(t, int64(30), interval.TotalDuration(l.History("p1")))
}

func TestRecord_LastReportSurvivesCopies(t *testing.T) {
	l := New()
	require.NoError(t, l.Record("p1", 1, 0))
	require.NoError(t, l.Record("p1", 0, 10))
	require.NoError(t, l.Record("p1", 1, 10))

	assert.ErrorIs(t, l.Clone().Record("p1", 0, 5), ErrOutOfOrder)
	assert.ErrorIs(t, Merge(New(), l).Record("p1", 0, 5), ErrOutOfOrder)
	assert.ErrorIs(t, Concat(New(), l).Record("p1", 0, 5), ErrOutOfOrder)
}

func TestSnapshot(t *testing.T) {
	l := New()
	require.NoError(t, l.Record("p1", 1, 0))
	require.NoError(t, l.Record("p2", 1, 0))
	require.NoError(t, l.Record("p2", 0, 5))

	assert.Equal(t, map[string]int{"p1": 1, "p2": 0}, l.Snapshot())
	assert.Equal(t, []string{"p1", "p2"}, l.Entities())
}

func TestMerge_SecondWins(t *testing.T) {
	a := New()
	require.NoError(t, a.Record("p1", 1, 0))
	require.NoError(t, a.Record("p1", 0, 50))
	require.NoError(t, a.Record("p2", 1, 10))

	b := New()
	require.NoError(t, b.Record("p1", 1, 20))

	m := Merge(a, b)
	assert.Equal(t, b.History("p1"), m.History("p1"))
	assert.Equal(t, a.History("p2"), m.History("p2"))

	// inputs untouched
	assert.Len(t, a.History("p1"), 1)
	assert.Equal(t, interval.Period{Start: 0, End: 50}, a.History("p1")[0].Period)
}

func TestClone_Independent(t *testing.T) {
	a := New()
	require.NoError(t, a.Record("p1", 1, 0))
	c := a.Clone()
	require.NoError(t, c.Record("p1", 0, 10))

	last, _ := a.Latest("p1")
	assert.True(t, last.IsOngoing())
}

func TestConcat_ReductionsPerEntity(t *testing.T) {
	a := New()
	require.NoError(t, a.Record("p1", 1, 0))
	require.NoError(t, a.Record("p1", 0, 10))
	b := New()
	require.NoError(t, b.Record("p1", 1, 5))
	require.NoError(t, b.Record("p1", 0, 15))

	all := Concat(a, b)
	assert.Len(t, all.History("p1"), 2)
	assert.Equal(t, int64(15), interval.TotalDuration(all.Cover()))
	assert.Equal(t, int64(20), interval.TotalDuration(all.UniqueSplit()))
}
