package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jagtrack/internal/ir"
)

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q := newEventQueue()

	event := ev("obs-1")

	ok := q.Enqueue(event)
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, ir.CategoryAwareness, got.Category)
	assert.Equal(t, "obs-1", got.Observer)
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	// Enqueue 3 events
	for i := 1; i <= 3; i++ {
		q.Enqueue(ev(string(rune('A' + i - 1))))
	}

	// Dequeue in order
	e1, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "A", e1.Observer)

	e2, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "B", e2.Observer)

	e3, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "C", e3.Observer)
}

func TestEventQueue_TryDequeue_Empty(t *testing.T) {
	q := newEventQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_Wait_SignalsEnqueue(t *testing.T) {
	q := newEventQueue()

	done := make(chan ir.Inbound)
	go func() {
		<-q.Wait()
		e, ok := q.TryDequeue()
		if ok {
			done <- e
		}
	}()

	// Give goroutine time to block
	time.Sleep(10 * time.Millisecond)
	q.Enqueue(ev("obs-blocking"))

	select {
	case e := <-done:
		assert.Equal(t, "obs-blocking", e.Observer)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("wait did not signal")
	}
}

func TestEventQueue_Close_WakesWaiters(t *testing.T) {
	q := newEventQueue()

	done := make(chan bool)
	go func() {
		<-q.Wait()
		done <- q.Drained()
	}()

	// Give goroutine time to block
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case drained := <-done:
		assert.True(t, drained, "closed empty queue is drained")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("wait did not wake after close")
	}
}

func TestEventQueue_Enqueue_AfterClose(t *testing.T) {
	q := newEventQueue()
	q.Close()

	ok := q.Enqueue(ev("obs-after-close"))
	assert.False(t, ok, "enqueue after close should return false")
}

func TestEventQueue_Len(t *testing.T) {
	q := newEventQueue()

	assert.Equal(t, 0, q.Len())

	q.Enqueue(ev("1"))
	assert.Equal(t, 1, q.Len())

	q.Enqueue(ev("2"))
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())

	q.TryDequeue()
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_ThreadSafe(t *testing.T) {
	q := newEventQueue()

	const producers = 10
	const eventsPerProducer = 100

	var wg sync.WaitGroup

	// Start producers
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(producerID int) {
			defer wg.Done()
			for i := 0; i < eventsPerProducer; i++ {
				q.Enqueue(ev(string(rune(producerID*1000 + i))))
			}
		}(p)
	}

	// Start consumer
	received := make([]ir.Inbound, 0, producers*eventsPerProducer)
	var mu sync.Mutex

	consumerDone := make(chan struct{})
	go func() {
		for {
			e, ok := q.TryDequeue()
			if !ok {
				// Queue might be temporarily empty
				time.Sleep(1 * time.Millisecond)
				continue
			}
			mu.Lock()
			received = append(received, e)
			if len(received) >= producers*eventsPerProducer {
				mu.Unlock()
				break
			}
			mu.Unlock()
		}
		close(consumerDone)
	}()

	// Wait for all producers
	wg.Wait()

	// Wait for consumer to finish
	select {
	case <-consumerDone:
		// Success
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer timeout: received %d events", len(received))
	}

	assert.Len(t, received, producers*eventsPerProducer)
}

func ev(observer string) ir.Inbound {
	return ir.Inbound{Category: ir.CategoryAwareness, Observer: observer, Activity: &ir.ActivityReport{}}
}
