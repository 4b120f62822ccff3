package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerTripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.Tripped())
	assert.Equal(t, 3, cb.Streak())
}

func TestCircuitBreakerSuccessResetsStreak(t *testing.T) {
	cb := NewCircuitBreaker(3)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.Streak())
	assert.False(t, cb.Tripped())

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
}

func TestCircuitBreakerNonPositiveThresholdTripsOnFirstFailure(t *testing.T) {
	cb := NewCircuitBreaker(0)
	assert.True(t, cb.RecordFailure())
}

func TestCircuitBreakerConcurrentFailuresEndAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(50)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.RecordFailure()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, cb.Streak())
	assert.True(t, cb.Tripped())
}
