package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closed(t *testing.T, subject string, conf float64, start, end int64) Tracker {
	t.Helper()
	p, err := NewPeriod(start, end)
	require.NoError(t, err)
	return Tracker{Subject: subject, Confidence: conf, Period: p, Contributors: 1}
}

func open(t *testing.T, subject string, conf float64, start int64) Tracker {
	t.Helper()
	tr, err := NewTracker(subject, conf, start)
	require.NoError(t, err)
	return tr
}

func TestNewPeriod_Rejects(t *testing.T) {
	_, err := NewPeriod(-1, 5)
	assert.ErrorIs(t, err, ErrMalformedPeriod)

	_, err = NewPeriod(10, 5)
	assert.ErrorIs(t, err, ErrMalformedPeriod)

	_, err = OpenPeriod(-3)
	assert.ErrorIs(t, err, ErrMalformedPeriod)

	p, err := NewPeriod(5, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Duration())
}

func TestPeriod_Close(t *testing.T) {
	p, err := OpenPeriod(100)
	require.NoError(t, err)
	assert.True(t, p.IsOngoing())
	assert.Equal(t, int64(-1), p.Duration())

	assert.ErrorIs(t, p.Close(50), ErrMalformedPeriod)
	require.NoError(t, p.Close(140))
	assert.False(t, p.IsOngoing())
	assert.Equal(t, int64(40), p.Duration())

	require.NoError(t, p.Close(150), "extending a closed period is allowed")
	assert.ErrorIs(t, p.Close(120), ErrMalformedPeriod)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Tracker
		want bool
	}{
		{"disjoint", closed(t, "p1", 1, 0, 5), closed(t, "p1", 1, 6, 9), false},
		{"shared boundary", closed(t, "p1", 1, 0, 5), closed(t, "p1", 1, 5, 9), true},
		{"contained", closed(t, "p1", 1, 0, 10), closed(t, "p1", 1, 2, 3), true},
		{"ongoing after closed", closed(t, "p1", 1, 0, 5), open(t, "p1", 1, 6), false},
		{"ongoing from inside closed", closed(t, "p1", 1, 0, 5), open(t, "p1", 1, 5), true},
		{"ongoing before closed", open(t, "p1", 1, 0), closed(t, "p1", 1, 5, 9), true},
		{"ongoing same start", open(t, "p1", 1, 3), open(t, "p1", 1, 3), true},
		{"ongoing different start", open(t, "p1", 1, 3), open(t, "p1", 1, 8), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, Overlaps(tt.b, tt.a), "overlap must be symmetric")
		})
	}
}

func TestUnion(t *testing.T) {
	u := Union(closed(t, "p1", 1, 0, 10), closed(t, "p1", 1, 5, 15))
	assert.Equal(t, Period{Start: 0, End: 15}, u.Period)

	u = Union(closed(t, "p1", 1, 0, 10), open(t, "p1", 1, 5))
	assert.Equal(t, int64(0), u.Period.Start)
	assert.True(t, u.IsOngoing())
}

func TestReductions_NonOverlappingUnchanged(t *testing.T) {
	a := closed(t, "p1", 1, 20, 30)
	b := closed(t, "p1", 1, 0, 10)

	for _, in := range [][]Tracker{{a, b}, {b, a}} {
		assert.Equal(t, in, Cover(in))
		assert.Equal(t, in, UniqueSplit(in))
	}
}

func TestReductions_DifferentKeysNotMerged(t *testing.T) {
	in := []Tracker{closed(t, "p1", 1, 0, 10), closed(t, "p2", 1, 5, 15)}
	assert.Equal(t, in, Cover(in))

	in = []Tracker{closed(t, "p1", 1, 0, 10), closed(t, "p1", 0.5, 5, 15)}
	assert.Equal(t, in, Cover(in))
}

func TestCover_OverlappingPair(t *testing.T) {
	out := Cover([]Tracker{closed(t, "p1", 1, 0, 10), closed(t, "p1", 1, 5, 15)})
	require.Len(t, out, 1)
	assert.Equal(t, Period{Start: 0, End: 15}, out[0].Period)
	assert.Equal(t, int64(15), TotalDuration(out))
}

func TestUniqueSplit_OverlappingPair(t *testing.T) {
	out := UniqueSplit([]Tracker{closed(t, "p1", 1, 5, 15), closed(t, "p1", 1, 0, 10)})
	require.Len(t, out, 3)

	assert.Equal(t, Period{Start: 0, End: 5}, out[0].Period)
	assert.Equal(t, 1, out[0].Contributors)
	assert.Equal(t, Period{Start: 5, End: 10}, out[1].Period)
	assert.Equal(t, 2, out[1].Contributors)
	assert.Equal(t, Period{Start: 10, End: 15}, out[2].Period)
	assert.Equal(t, 1, out[2].Contributors)

	assert.Equal(t, int64(20), TotalDuration(out), "person time equals the naive sum")
}

func TestUniqueSplit_SameStart(t *testing.T) {
	out := UniqueSplit([]Tracker{closed(t, "p1", 1, 0, 10), closed(t, "p1", 1, 0, 4)})
	require.Len(t, out, 2)
	assert.Equal(t, Period{Start: 0, End: 4}, out[0].Period)
	assert.Equal(t, 2, out[0].Contributors)
	assert.Equal(t, Period{Start: 4, End: 10}, out[1].Period)
	assert.Equal(t, int64(14), TotalDuration(out))
}

func TestUniqueSplit_WithOngoing(t *testing.T) {
	out := UniqueSplit([]Tracker{closed(t, "p1", 1, 0, 10), open(t, "p1", 1, 5)})
	require.Len(t, out, 3)
	assert.True(t, out[2].IsOngoing())
	assert.Equal(t, int64(10), out[2].Period.Start)
	assert.Equal(t, int64(5+10), TotalDuration(out))
}

func TestCover_ChainOfThree(t *testing.T) {
	out := Cover([]Tracker{
		closed(t, "p1", 1, 8, 12),
		closed(t, "p1", 1, 0, 5),
		closed(t, "p1", 1, 4, 8),
		closed(t, "p1", 1, 20, 25),
	})
	require.Len(t, out, 2)
	assert.Equal(t, Period{Start: 0, End: 12}, out[0].Period)
	assert.Equal(t, Period{Start: 20, End: 25}, out[1].Period)
}

func TestTotalDuration_Undefined(t *testing.T) {
	assert.Equal(t, int64(-1), TotalDuration(nil))
	assert.Equal(t, int64(-1), TotalDuration([]Tracker{open(t, "p1", 1, 0)}))
	assert.Equal(t, int64(0), TotalDuration([]Tracker{closed(t, "p1", 1, 3, 3)}))
}
