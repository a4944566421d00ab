package crdt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource возвращает источник времени, который можно двигать из теста
func fixedSource(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	current := start
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}
	return now, advance
}

func TestMutationClock_UsesWallTime(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	now, advance := fixedSource(start)
	clock := NewMutationClockWithSource(now)

	assert.Equal(t, start.UnixMilli(), clock.Now())

	advance(5 * time.Second)
	assert.Equal(t, start.UnixMilli()+5000, clock.Now())
}

func TestMutationClock_Monotonicity(t *testing.T) {
	now, _ := fixedSource(time.UnixMilli(1000))
	clock := NewMutationClockWithSource(now)

	var previous int64
	for i := 0; i < 100; i++ {
		current := clock.Now()
		assert.Greater(t, current, previous, "Now should always increase even when wall time stands still")
		previous = current
	}
}

func TestMutationClock_WallClockGoesBackwards(t *testing.T) {
	now, advance := fixedSource(time.UnixMilli(10_000))
	clock := NewMutationClockWithSource(now)

	first := clock.Now()
	advance(-5 * time.Second)
	second := clock.Now()

	assert.Equal(t, first+1, second)
}

func TestMutationClock_Observe(t *testing.T) {
	tests := []struct {
		name     string
		wall     int64
		observed int64
		want     int64
	}{
		{name: "remote ahead of local", wall: 100, observed: 500, want: 501},
		{name: "remote behind local", wall: 1000, observed: 500, want: 1000},
		{name: "remote equals local", wall: 700, observed: 700, want: 701},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, _ := fixedSource(time.UnixMilli(tt.wall))
			clock := NewMutationClockWithSource(now)

			clock.Observe(tt.observed)
			assert.Equal(t, tt.want, clock.Now())
		})
	}
}

func TestMutationClock_ConcurrentNow(t *testing.T) {
	now, _ := fixedSource(time.UnixMilli(1))
	clock := NewMutationClockWithSource(now)

	const goroutines = 20
	const perGoroutine = 50

	results := make(chan int64, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- clock.Now()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for ts := range results {
		require.False(t, seen[ts], "timestamp %d issued twice", ts)
		seen[ts] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, int64(goroutines*perGoroutine), clock.Last())
}

func TestNextAfter(t *testing.T) {
	now, _ := fixedSource(time.UnixMilli(1000))

	assert.Equal(t, int64(1000), NextAfter(NewMutationClockWithSource(now), 500))
	assert.Equal(t, int64(5001), NextAfter(NewMutationClockWithSource(now), 5000))
}
