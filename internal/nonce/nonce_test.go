package nonce

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAndIncrementReturnsPreIncrementValue(t *testing.T) {
	m := New(10)
	assert.Equal(t, uint64(10), m.GetAndIncrement())
	assert.Equal(t, uint64(11), m.GetAndIncrement())
	assert.Equal(t, uint64(12), m.Current())
}

func TestRollbackUndoesOneIncrement(t *testing.T) {
	m := New(5)
	v := m.GetAndIncrement()
	assert.Equal(t, uint64(5), v)
	m.Rollback()
	assert.Equal(t, uint64(5), m.Current())
}

func TestForceSetResyncsFromChain(t *testing.T) {
	m := New(5)
	m.GetAndIncrement()
	m.GetAndIncrement()
	m.ForceSet(100)
	assert.Equal(t, uint64(100), m.Current())
}

// TestInterleavedIncrementsAndRollbacksEndAtNPlusKMinusR mirrors spec §8's
// nonce property: starting from n, k increments and r<=k rollbacks (on the
// highest-valued allocations) end at n+k-r.
func TestInterleavedIncrementsAndRollbacksEndAtNPlusKMinusR(t *testing.T) {
	const n, k, r = 1000, 50, 17
	m := New(n)

	var wg sync.WaitGroup
	values := make([]uint64, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			values[idx] = m.GetAndIncrement()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(n+k), m.Current())

	for i := 0; i < r; i++ {
		m.Rollback()
	}
	assert.Equal(t, uint64(n+k-r), m.Current())

	seen := make(map[uint64]bool, k)
	for _, v := range values {
		assert.False(t, seen[v], "value %d returned twice", v)
		seen[v] = true
		assert.True(t, v >= n && v < n+k)
	}
	assert.Len(t, seen, k)
}
