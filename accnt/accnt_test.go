package accnt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUtaddSystaddAccumulate(t *testing.T) {
	a := &Accnt_t{}
	a.Utadd(100)
	a.Utadd(50)
	a.Systadd(25)

	snap := a.Fetch()
	assert.EqualValues(t, 150, snap.Userns)
	assert.EqualValues(t, 25, snap.Sysns)
}

func TestVmCountersAreIndependent(t *testing.T) {
	a := &Accnt_t{}
	a.PageFault()
	a.PageFault()
	a.Evict()
	a.SwapOut()
	a.SwapOut()
	a.SwapOut()
	a.SwapIn()

	snap := a.Fetch()
	assert.EqualValues(t, 2, snap.PageFaults)
	assert.EqualValues(t, 1, snap.Evictions)
	assert.EqualValues(t, 3, snap.SwapOuts)
	assert.EqualValues(t, 1, snap.SwapIns)
}

func TestAddMergesChildIntoParent(t *testing.T) {
	parent := &Accnt_t{}
	parent.Utadd(10)
	parent.PageFault()

	child := &Accnt_t{}
	child.Utadd(5)
	child.PageFault()
	child.SwapOut()

	parent.Add(child)

	snap := parent.Fetch()
	assert.EqualValues(t, 15, snap.Userns)
	assert.EqualValues(t, 2, snap.PageFaults)
	assert.EqualValues(t, 1, snap.SwapOuts)
}

func TestConcurrentCountersDoNotRace(t *testing.T) {
	a := &Accnt_t{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.PageFault()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 50, a.Fetch().PageFaults)
}
