package sensors

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMailboxLatestWins(t *testing.T) {
	var m Mailbox[int]

	_, _, fresh := m.Take()
	assert.False(t, fresh)
	_, _, ok := m.Peek()
	assert.False(t, ok)

	m.Store(1, 10)
	m.Store(2, 11)
	m.Store(3, 12)
	assert.Equal(t, uint64(2), m.Overwritten())

	v, stamp, fresh := m.Take()
	assert.Equal(t, 3, v)
	assert.Equal(t, uint32(12), stamp)
	assert.True(t, fresh)

	v, _, fresh = m.Take()
	assert.Equal(t, 3, v)
	assert.False(t, fresh)

	v, stamp, ok = m.Peek()
	assert.Equal(t, 3, v)
	assert.Equal(t, uint32(12), stamp)
	assert.True(t, ok)

	m.Store(4, 20)
	assert.Equal(t, uint64(2), m.Overwritten())
}

func TestMailboxConcurrentProducer(t *testing.T) {
	var m Mailbox[[2]int]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			m.Store([2]int{i, -i}, uint32(i))
		}
	}()
	for i := 0; i < 1000; i++ {
		v, _, _ := m.Take()
		// a torn write would break the pairing
		assert.Equal(t, v[0], -v[1])
	}
	wg.Wait()
	v, stamp, _ := m.Peek()
	assert.Equal(t, [2]int{9999, -9999}, v)
	assert.Equal(t, uint32(9999), stamp)
}
