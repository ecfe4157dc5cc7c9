package sync

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutex_LockUnlock(t *testing.T) {
	m := NewShardedMutex()

	m.Lock("session-1")
	m.Unlock("session-1")

	m.Lock("")
	m.Unlock("")
}

func TestShardedMutex_DoSerializesSameKey(t *testing.T) {
	m := NewShardedMutex()
	counter := 0
	var wg sync.WaitGroup

	for range 200 {
		wg.Go(func() {
			_ = m.Do("session-1", func() error {
				counter++
				return nil
			})
		})
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
}

func TestShardedMutex_DoReturnsError(t *testing.T) {
	m := NewShardedMutex()
	want := errors.New("boom")

	err := m.Do("session-1", func() error { return want })

	assert.ErrorIs(t, err, want)
	// the lock is released after an error
	m.Lock("session-1")
	m.Unlock("session-1")
}

func TestShardFor_StableAndInRange(t *testing.T) {
	for _, key := range []string{"a", "session-1", "4f0c7f3e-5d0b-4d0e-9b8c-1d2e3f4a5b6c"} {
		shard := shardFor(key)
		assert.Equal(t, shard, shardFor(key))
		assert.GreaterOrEqual(t, shard, 0)
		assert.Less(t, shard, shardCount)
	}
	assert.Equal(t, 0, shardFor(""))
}
