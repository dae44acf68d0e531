package mailbox

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu  sync.Mutex
	got []int
}

func (s *sink) receive(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, v)
}

func (s *sink) values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.got...)
}

func TestBuffersUntilAttached(t *testing.T) {
	m := New[int]()
	defer m.Close()

	for i := 1; i <= 5; i++ {
		m.Post(i)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 5, m.Pending())

	var s sink
	m.Attach(s.receive)

	require.Eventually(t, func() bool { return len(s.values()) == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, s.values())
	assert.Equal(t, 0, m.Pending())
}

func TestSwapDeliversEachEventOnce(t *testing.T) {
	m := New[int]()
	defer m.Close()

	var first, second sink
	m.Attach(first.receive)
	m.Post(1)
	require.Eventually(t, func() bool { return len(first.values()) == 1 }, time.Second, 5*time.Millisecond)

	m.Detach()
	m.Post(2)
	m.Post(3)
	time.Sleep(20 * time.Millisecond)
	m.Attach(second.receive)

	require.Eventually(t, func() bool { return len(second.values()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{1}, first.values())
	assert.Equal(t, []int{2, 3}, second.values())
}

func TestDropAndGate(t *testing.T) {
	m := New[int](WithGate(func(v int) bool { return v != 4 }))
	defer m.Close()

	for i := 1; i <= 6; i++ {
		m.Post(i)
	}
	dropped := m.Drop(func(v int) bool { return v%2 == 1 })
	assert.Equal(t, 3, dropped)

	var s sink
	m.Attach(s.receive)
	require.Eventually(t, func() bool { return m.Pending() == 0 && len(s.values()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{2, 6}, s.values())
}

func TestCloseStopsDelivery(t *testing.T) {
	m := New[int]()
	var s sink
	m.Close()
	m.Close()
	m.Attach(s.receive)
	m.Post(1)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, s.values())
}
