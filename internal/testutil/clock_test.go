package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock_AdvancesAfterEachCall(t *testing.T) {
	clock := NewStepClock(Epoch, time.Minute)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Minute), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Minute), clock.Peek())
}

func TestFixedClock_NeverMoves(t *testing.T) {
	clock := NewFixedClock(Epoch)

	for i := 0; i < 3; i++ {
		assert.Equal(t, Epoch, clock.Now())
	}
}

func TestStepClock_Set(t *testing.T) {
	clock := NewFixedClock(Epoch)
	later := Epoch.Add(48 * time.Hour)

	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestStepClock_ConcurrentCallsAreDistinct(t *testing.T) {
	clock := NewStepClock(Epoch, time.Second)

	const n = 50
	seen := make(chan time.Time, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- clock.Now()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[time.Time]bool)
	for ts := range seen {
		unique[ts] = true
	}
	assert.Len(t, unique, n)
}
