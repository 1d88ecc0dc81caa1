package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	clock := NewManualClock(time.Time{})
	assert.True(t, clock.Now().Equal(Epoch))
}

func TestManualClock_OnlyMovesWhenTold(t *testing.T) {
	clock := NewManualClock(Epoch)

	assert.Equal(t, clock.Now(), clock.Now())

	next := clock.Advance(5 * time.Second)
	assert.Equal(t, Epoch.Add(5*time.Second), next)
	assert.Equal(t, next, clock.Now())

	later := Epoch.Add(time.Hour)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestSequenceGenerator_Sequence(t *testing.T) {
	gen := NewSequenceGenerator("zone")
	assert.Equal(t, "zone-1", gen.Generate())
	assert.Equal(t, "zone-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "zone-1", gen.Generate())
}

func TestSequenceGenerator_EmptyPrefixDefault(t *testing.T) {
	gen := NewSequenceGenerator("")
	assert.Equal(t, "id-1", gen.Generate())
}

func TestSequenceGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceGenerator("t")

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 1000, "every generated id must be unique")
}
