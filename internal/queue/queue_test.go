package queue_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smaq/smaq/internal/model"
	"github.com/smaq/smaq/internal/queue"
)

func item(id int64) *model.WorkItem {
	return model.NewWorkItem(id, []model.PricePoint{{Open: 1, High: 1, Low: 1, Close: 1}})
}

func TestEmptyQueue(t *testing.T) {
	q := queue.New()

	got, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Equal(t, 0, q.Len())

	select {
	case <-q.Ready():
		t.Fatal("Ready fired on an empty queue")
	default:
	}
}

func TestFIFOOrder(t *testing.T) {
	q := queue.New()
	for i := int64(1); i <= 200; i++ {
		q.Enqueue(item(i))
	}
	require.Equal(t, 200, q.Len())

	for want := int64(1); want <= 200; want++ {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		require.Equal(t, want, got.ID())
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestInterleavedEnqueueDequeue(t *testing.T) {
	q := queue.New()
	next := int64(1)
	want := int64(1)

	for round := 0; round < 50; round++ {
		for i := 0; i < 5; i++ {
			q.Enqueue(item(next))
			next++
		}
		for i := 0; i < 3; i++ {
			got, ok := q.TryDequeue()
			require.True(t, ok)
			require.Equal(t, want, got.ID())
			want++
		}
	}
	assert.Equal(t, int(next-want), q.Len())
}

func TestReadySignalCoalesces(t *testing.T) {
	q := queue.New()
	q.Enqueue(item(1))
	q.Enqueue(item(2))

	select {
	case <-q.Ready():
	default:
		t.Fatal("expected a pending wakeup after Enqueue")
	}
	select {
	case <-q.Ready():
		t.Fatal("wakeups should coalesce into one")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestConcurrentProducers(t *testing.T) {
	q := queue.New()
	var seq model.IDSequence
	const producers, perProducer = 16, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(item(seq.Next()))
			}
		}()
	}

	// Single consumer drains concurrently with the producers.
	seen := make(map[int64]bool)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(seen) < producers*perProducer {
			if it, ok := q.TryDequeue(); ok {
				seen[it.ID()] = true
				continue
			}
			<-q.Ready()
		}
	}()

	wg.Wait()
	<-done
	assert.Len(t, seen, producers*perProducer)
	assert.Equal(t, 0, q.Len())
}
