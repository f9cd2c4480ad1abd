package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_ReturnsSameInstant(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestFixedClock_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("NZDT", 13*60*60)
	clock := NewFixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, loc))

	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.Equal(t, 20, clock.Now().Hour())
}

func TestFixedClock_Advance(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	got := clock.Advance(90 * time.Second)

	assert.Equal(t, start.Add(90*time.Second), got)
	assert.Equal(t, got, clock.Now())
}

func TestFixedClock_ConcurrentAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(50*time.Second), clock.Now())
}
