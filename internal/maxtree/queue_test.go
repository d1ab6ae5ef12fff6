package maxtree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func drain[T Scalar](q *Queue[T]) (pixels []int32, levels []T) {
	for {
		p, l, ok := q.Pop()
		if !ok {
			return pixels, levels
		}
		pixels = append(pixels, p)
		levels = append(levels, l)
	}
}

func TestQueueOrder(t *testing.T) {
	tests := []struct {
		name       string
		dir        Direction
		wantPixels []int32
	}{
		{"bright", Bright, []int32{4, 1, 3, 0, 2}},
		{"dark", Dark, []int32{0, 2, 1, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue[float32](tt.dir, 0)
			// Pushed out of order; pixels 1 and 3 tie at level 5.
			q.Push(3, 5)
			q.Push(0, 2)
			q.Push(4, 9)
			q.Push(2, 2)
			q.Push(1, 5)
			pixels, _ := drain(q)
			require.Equal(t, tt.wantPixels, pixels)
		})
	}
}

func TestQueuePeek(t *testing.T) {
	q := NewQueue[float64](Bright, 4)
	_, _, ok := q.Peek()
	require.False(t, ok)
	_, _, ok = q.Pop()
	require.False(t, ok)
	require.True(t, q.Empty())

	q.Push(10, 1.5)
	q.Push(11, 2.5)
	p, l, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, int32(11), p)
	require.Equal(t, 2.5, l)
	require.Equal(t, 2, q.Len())

	p, _, _ = q.Pop()
	require.Equal(t, int32(11), p)
	p, _, _ = q.Peek()
	require.Equal(t, int32(10), p)
}

func TestQueueRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	q := NewQueue[float64](Bright, 0)
	type entry struct {
		pixel int32
		level float64
	}
	var want []entry
	for i := 0; i < 2000; i++ {
		e := entry{pixel: int32(rng.Intn(5000)), level: float64(rng.Intn(20))}
		want = append(want, e)
		q.Push(e.pixel, e.level)
	}
	sort.SliceStable(want, func(i, j int) bool {
		if want[i].level != want[j].level {
			return want[i].level > want[j].level
		}
		return want[i].pixel < want[j].pixel
	})
	pixels, levels := drain(q)
	require.Len(t, pixels, len(want))
	for i, e := range want {
		require.Equal(t, e.level, levels[i], "position %d", i)
		require.Equal(t, e.pixel, pixels[i], "position %d", i)
	}
}
