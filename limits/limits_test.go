package limits

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterTakeGive(t *testing.T) {
	c := New(2)
	assert.True(t, c.Take(1))
	assert.True(t, c.Take(1))
	assert.False(t, c.Take(1), "counter must saturate at zero rather than go negative")
	assert.Equal(t, 0, c.Remaining())

	c.Give(1)
	assert.Equal(t, 1, c.Remaining())
}

func TestCounterConcurrentTake(t *testing.T) {
	c := New(100)
	var wg sync.WaitGroup
	successes := make([]bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			successes[i] = c.Take(1)
		}(i)
	}
	wg.Wait()

	n := 0
	for _, ok := range successes {
		if ok {
			n++
		}
	}
	assert.Equal(t, 100, n, "exactly capacity takes should succeed under concurrent load")
	assert.Equal(t, 0, c.Remaining())
}
