package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	goerrors "errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
	"github.com/funkyflowstudios/synapse-hub-sub000/metric"
)

func TestBasicWriteReadFIFO(t *testing.T) {
	buf, err := New[string](3, FIFO)
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write("first"))
	require.NoError(t, buf.Write("second"))
	require.NoError(t, buf.Write("third"))

	assert.True(t, buf.IsFull())
	assert.Equal(t, 3, buf.Size())

	value, ok := buf.Peek()
	require.True(t, ok)
	assert.Equal(t, "first", value)
	assert.Equal(t, 3, buf.Size(), "peek must not change size")

	for _, want := range []string{"first", "second", "third"} {
		got, ok := buf.Read()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok = buf.Read()
	assert.False(t, ok)
	assert.True(t, buf.IsEmpty())
}

func TestLIFODrainsNewestFirst(t *testing.T) {
	buf, err := New[int](3, LIFO)
	require.NoError(t, err)
	defer buf.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, buf.Write(i))
	}

	for _, want := range []int{3, 2, 1} {
		got, ok := buf.Read()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestPriorityDrainOrder(t *testing.T) {
	type reading struct {
		name string
		prio int
	}

	buf, err := New[reading](5, Priority, WithPriorityFn[reading](func(r reading) int { return r.prio }))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(reading{"low-a", 1}))
	require.NoError(t, buf.Write(reading{"high", 9}))
	require.NoError(t, buf.Write(reading{"low-b", 1}))
	require.NoError(t, buf.Write(reading{"mid", 5}))

	var names []string
	for {
		r, ok := buf.Read()
		if !ok {
			break
		}
		names = append(names, r.name)
	}

	// Descending priority, ties in insertion order
	assert.Equal(t, []string{"high", "mid", "low-a", "low-b"}, names)
}

func TestPriorityRequiresPriorityFn(t *testing.T) {
	_, err := New[int](5, Priority)
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, errors.ErrInvalidConfig))
}

func TestTimeWindowEviction(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	buf, err := New[int](10, TimeWindow,
		WithWindow[int](100*time.Millisecond),
		withNow[int](func() time.Time { return clock() }))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))

	// Advance past the window; old readings are evicted regardless of capacity
	now = now.Add(200 * time.Millisecond)
	require.NoError(t, buf.Write(3))

	assert.Equal(t, 1, buf.Size())
	got, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, 3, got)
	assert.Equal(t, int64(2), buf.Stats().Expired())
}

func TestDropOldestRetainsMostRecent(t *testing.T) {
	buf, err := New[int](3, FIFO, WithOverflowPolicy[int](DropOldest))
	require.NoError(t, err)
	defer buf.Close()

	// Write 10 items into capacity 3; the last 3 must survive in order
	for i := 1; i <= 10; i++ {
		require.NoError(t, buf.Write(i))
	}

	assert.Equal(t, []int{8, 9, 10}, buf.ReadBatch(10))
	assert.Equal(t, int64(7), buf.Stats().Drops())
}

func TestDropNewestDiscardsIncoming(t *testing.T) {
	var dropped []string
	buf, err := New[string](3, FIFO,
		WithOverflowPolicy[string](DropNewest),
		WithDropCallback[string](func(item string) { dropped = append(dropped, item) }))
	require.NoError(t, err)
	defer buf.Close()

	for _, s := range []string{"A", "B", "C", "D"} {
		require.NoError(t, buf.Write(s))
	}

	assert.Equal(t, []string{"A", "B", "C"}, buf.ReadBatch(10))
	assert.Equal(t, []string{"D"}, dropped)
}

func TestRejectReturnsBufferFull(t *testing.T) {
	buf, err := New[int](2, FIFO, WithOverflowPolicy[int](Reject))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))

	err = buf.Write(3)
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, errors.ErrBufferFull))
	assert.Equal(t, 2, buf.Size())
}

func TestBlockWaitsForSpace(t *testing.T) {
	buf, err := New[int](1, FIFO, WithOverflowPolicy[int](Block))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))

	done := make(chan error, 1)
	go func() {
		done <- buf.Write(2)
	}()

	select {
	case <-done:
		t.Fatal("write should block while buffer is full")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok := buf.Read()
	require.True(t, ok)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked write never completed")
	}
	assert.Equal(t, 1, buf.Size())
}

func TestBlockHonorsContext(t *testing.T) {
	buf, err := New[int](1, FIFO, WithOverflowPolicy[int](Block))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = buf.WriteContext(ctx, 2)
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, context.DeadlineExceeded))
}

func TestBlockReleasedOnClose(t *testing.T) {
	buf, err := New[int](1, FIFO, WithOverflowPolicy[int](Block))
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))

	done := make(chan error, 1)
	go func() {
		done <- buf.Write(2)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, buf.Close())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, goerrors.Is(err, errors.ErrBufferClosed))
	case <-time.After(time.Second):
		t.Fatal("blocked write not released by Close")
	}
}

func TestWriteToClosedBuffer(t *testing.T) {
	buf, err := New[int](2, FIFO)
	require.NoError(t, err)
	require.NoError(t, buf.Close())

	err = buf.Write(1)
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, errors.ErrBufferClosed))
}

func TestClearInvokesDropCallback(t *testing.T) {
	var dropped []int
	buf, err := New[int](5, FIFO,
		WithDropCallback[int](func(item int) { dropped = append(dropped, item) }))
	require.NoError(t, err)
	defer buf.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, buf.Write(i))
	}

	buf.Clear()
	assert.True(t, buf.IsEmpty())
	assert.ElementsMatch(t, []int{1, 2, 3}, dropped)
}

func TestDropCallbackMayReenterBuffer(t *testing.T) {
	// The callback runs after the buffer's lock is released, so it may
	// call back into the buffer without deadlocking.
	var buf Buffer[int]
	var sizes []int
	var err error
	buf, err = New[int](2, FIFO,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback[int](func(int) { sizes = append(sizes, buf.Size()) }))
	require.NoError(t, err)
	defer buf.Close()

	for i := 1; i <= 4; i++ {
		require.NoError(t, buf.Write(i))
	}
	assert.Equal(t, []int{2, 2}, sizes, "overflow drops observe the post-write size")

	sizes = nil
	buf.Clear()
	assert.Equal(t, []int{0, 0}, sizes, "clear drops observe the emptied buffer")
}

func TestConcurrentWritersSingleReader(t *testing.T) {
	buf, err := New[int](128, FIFO, WithOverflowPolicy[int](DropOldest))
	require.NoError(t, err)
	defer buf.Close()

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = buf.Write(base + i)
			}
		}(w * 1000)
	}

	drained := 0
	doneWriting := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneWriting)
	}()

	for {
		if _, ok := buf.Read(); ok {
			drained++
			continue
		}
		select {
		case <-doneWriting:
			for {
				if _, ok := buf.Read(); !ok {
					totalWrites := buf.Stats().Writes()
					totalDrops := buf.Stats().Drops()
					assert.Equal(t, int64(drained), totalWrites-totalDrops)
					return
				}
				drained++
			}
		default:
		}
	}
}

func TestStatsTracking(t *testing.T) {
	buf, err := New[int](2, FIFO, WithOverflowPolicy[int](DropOldest))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	require.NoError(t, buf.Write(3)) // drops 1

	buf.Read()
	buf.Peek()

	stats := buf.Stats()
	assert.Equal(t, int64(3), stats.Writes())
	assert.Equal(t, int64(1), stats.Reads())
	assert.Equal(t, int64(1), stats.Peeks())
	assert.Equal(t, int64(1), stats.Overflows())
	assert.Equal(t, int64(1), stats.Drops())
	assert.Equal(t, int64(2), stats.MaxSize())
}

func TestWithMetricsRegistersCollectors(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	buf, err := New[int](4, FIFO, WithMetrics[int](registry, "gps-stream"))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, fam := range families {
		if fam.GetName() == "synapse_buffer_writes_total" {
			found = true
		}
	}
	assert.True(t, found, "buffer metrics not registered")
}
