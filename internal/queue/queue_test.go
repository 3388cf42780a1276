package queue

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockwatch/internal/models"
)

func ev(resource string, n int) models.AlertEvent {
	return models.AlertEvent{ResourceID: resource, Message: strconv.Itoa(n)}
}

func TestDrainAllReturnsFIFOAndEmpties(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Enqueue(ev("c", i))
	}
	require.Equal(t, 5, q.Len())

	got := q.DrainAll()
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, strconv.Itoa(i), e.Message)
	}
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.DrainAll())
}

func TestLockedPushesInOrder(t *testing.T) {
	q := New()
	q.Enqueue(ev("a", 0))
	q.Locked(func(push func(models.AlertEvent)) {
		push(ev("a", 1))
		push(ev("a", 2))
	})
	q.Enqueue(ev("a", 3))

	got := q.DrainAll()
	require.Len(t, got, 4)
	for i, e := range got {
		assert.Equal(t, strconv.Itoa(i), e.Message)
	}
}

// Two producers and a concurrent drainer: every event arrives exactly once
// and each producer's events keep their relative order.
func TestConcurrentProducersKeepOrder(t *testing.T) {
	const perProducer = 2000
	q := New()

	var wg sync.WaitGroup
	for _, name := range []string{"monitor", "inbound"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(ev(name, i))
			}
		}(name)
	}

	done := make(chan struct{})
	var drained []models.AlertEvent
	go func() {
		defer close(done)
		for len(drained) < 2*perProducer {
			drained = append(drained, q.DrainAll()...)
		}
	}()

	wg.Wait()
	<-done

	next := map[string]int{}
	for _, e := range drained {
		n, err := strconv.Atoi(e.Message)
		require.NoError(t, err)
		require.Equal(t, next[e.ResourceID], n, "producer %s out of order", e.ResourceID)
		next[e.ResourceID]++
	}
	assert.Equal(t, perProducer, next["monitor"])
	assert.Equal(t, perProducer, next["inbound"])
	assert.Equal(t, 0, q.Len())
}
