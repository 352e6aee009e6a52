package rfremote

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feeder drives a Receiver the way a source and a main loop would, one
// edge and one poll at a time, so no edge is ever dropped.
type feeder struct {
	r   *Receiver
	now uint32
}

func (f *feeder) edge(level bool, us uint32) (Command, bool) {
	f.now += us
	f.r.Edge(level, f.now)
	cmd, ok := f.r.Poll()
	if ok {
		return cmd, ok
	}
	if f.r.Full() {
		return f.r.Poll()
	}
	return Command{}, false
}

// frame feeds a full buffer: noise, a sync gap, the given pulses, a sync
// gap and more noise. It returns the result of the decode.
func (f *feeder) frame(t *testing.T, intervals []uint32, levels []bool) (Command, bool) {
	t.Helper()
	require.Equal(t, len(intervals), len(levels))

	edges := 0
	emit := func(level bool, us uint32) (Command, bool) {
		edges++
		cmd, ok := f.edge(level, us)
		if edges < BufferSize {
			require.False(t, ok, "decoded before buffer was full")
		}
		return cmd, ok
	}

	for i := 0; i < 3; i++ {
		emit(i%2 == 0, noise)
	}
	emit(false, gap)
	for i := range intervals {
		emit(levels[i], intervals[i])
	}
	emit(true, gap)

	var cmd Command
	var ok bool
	for edges < BufferSize {
		cmd, ok = emit(edges%2 == 0, noise)
	}
	return cmd, ok
}

func TestReceiverDecodesFrame(t *testing.T) {
	r := NewReceiver(1000, Decoder{Bands: DefaultBands})
	f := &feeder{r: r, now: 1000}

	cmd, ok := f.frame(t, []uint32{short, long, short}, []bool{true, false, true})
	require.True(t, ok)
	assert.Equal(t, "1001", cmd.String())
	assert.Equal(t, cmd, r.Command())

	// A new cycle has started.
	assert.False(t, r.Full())
	assert.Equal(t, 0, r.WriteIndex())
	assert.Equal(t, TimingBuffer{}, *r.Buffer())

	st := r.Stats()
	assert.Equal(t, uint64(BufferSize), st.Edges)
	assert.Equal(t, uint64(0), st.Dropped)
	assert.Equal(t, uint64(1), st.Frames)
	assert.Equal(t, uint64(1), st.Decoded)
}

func TestReceiverDiscardClearsCommand(t *testing.T) {
	r := NewReceiver(0, Decoder{Bands: DefaultBands})
	f := &feeder{r: r}

	_, ok := f.frame(t, []uint32{short}, []bool{true})
	require.True(t, ok)
	require.Equal(t, "1", r.Command().String())

	cmd, ok := f.frame(t, []uint32{short, 750}, []bool{true, true})
	assert.False(t, ok)
	assert.Equal(t, Command{}, cmd)
	assert.Equal(t, Command{}, r.Command())
	assert.Equal(t, TimingBuffer{}, *r.Buffer())
	assert.Equal(t, uint64(1), r.Stats().InvalidTiming)

	// No sync gaps at all.
	for i := 0; i < BufferSize-1; i++ {
		_, ok := f.edge(i%2 == 0, noise)
		require.False(t, ok)
	}
	_, ok = f.edge(true, noise)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), r.Stats().NoPattern)
	assert.Equal(t, uint64(3), r.Stats().Frames)
}

func TestReceiverDropsEdgeWhileLocked(t *testing.T) {
	r := NewReceiver(100, Decoder{Bands: DefaultBands})

	r.Edge(true, 600)
	require.True(t, r.Locked())
	level, interval, last := r.level, r.interval, r.lastEdge

	r.Edge(false, 900)
	assert.True(t, r.Locked())
	assert.Equal(t, level, r.level)
	assert.Equal(t, interval, r.interval)
	assert.Equal(t, last, r.lastEdge)
	assert.Equal(t, uint64(1), r.Stats().Dropped)

	_, ok := r.Poll()
	assert.False(t, ok)
	assert.False(t, r.Locked())
	assert.Equal(t, 1, r.WriteIndex())
	assert.True(t, r.Buffer().Polarity[0])
	assert.Equal(t, uint32(500), r.Buffer().Interval[0])

	// The dropped edge is folded into the next interval.
	r.Edge(false, 1400)
	r.Poll()
	assert.Equal(t, uint32(800), r.Buffer().Interval[1])
}

func TestReceiverBufferCompletion(t *testing.T) {
	r := NewReceiver(0, Decoder{Bands: DefaultBands})
	f := &feeder{r: r}

	for i := 0; i < BufferSize-1; i++ {
		f.now += noise
		r.Edge(true, f.now)
		r.Poll()
		require.False(t, r.Full())
		require.Equal(t, i+1, r.WriteIndex())
	}
	r.Edge(true, f.now+noise)
	r.Poll()
	assert.True(t, r.Full())
	assert.Equal(t, 0, r.WriteIndex())
	assert.False(t, r.Locked())

	// Capture is paused until the buffer has been decoded.
	last := r.lastEdge
	r.Edge(false, f.now+2*noise)
	assert.False(t, r.Locked())
	assert.Equal(t, last, r.lastEdge)
	assert.Equal(t, uint64(1), r.Stats().Dropped)

	_, ok := r.Poll()
	assert.False(t, ok)
	assert.False(t, r.Full())

	r.Edge(false, f.now+3*noise)
	assert.True(t, r.Locked())
}

func TestReceiverNeverCapturesIntoFullBuffer(t *testing.T) {
	r := NewReceiver(0, Decoder{Bands: DefaultBands})
	var capturedWhileFull, captured atomic.Int64
	r.Mirror = func(bool) {
		captured.Add(1)
		if r.Full() {
			capturedWhileFull.Add(1)
		}
	}

	const edges = 20 * BufferSize
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Poll()
			}
		}
	}()

	var now uint32
	for i := 0; i < edges; i++ {
		now += noise
		r.Edge(i%2 == 0, now)
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, capturedWhileFull.Load())
	st := r.Stats()
	assert.Equal(t, uint64(edges), st.Edges)
	assert.Equal(t, st.Edges-st.Dropped, uint64(captured.Load()))
	assert.NotEqual(t, slotClaimed, r.slot.Load(), "slot left claimed")
}

func TestReceiverPollIdle(t *testing.T) {
	r := NewReceiver(0, Decoder{Bands: DefaultBands})
	for i := 0; i < 10; i++ {
		_, ok := r.Poll()
		assert.False(t, ok)
	}
	assert.Equal(t, 0, r.WriteIndex())
	assert.Equal(t, uint64(0), r.Stats().Frames)
}

func TestReceiverClockWrap(t *testing.T) {
	start := ^uint32(0) - 100
	r := NewReceiver(start, Decoder{Bands: DefaultBands})
	r.Edge(true, start+500)
	r.Poll()
	assert.Equal(t, uint32(500), r.Buffer().Interval[0])
}

func TestReceiverHooks(t *testing.T) {
	r := NewReceiver(0, Decoder{Bands: DefaultBands})
	var mirrored []bool
	r.Mirror = func(level bool) { mirrored = append(mirrored, level) }
	var frames []TimingBuffer
	r.OnFrame = func(buf *TimingBuffer) { frames = append(frames, *buf) }

	f := &feeder{r: r}
	_, ok := f.frame(t, []uint32{long}, []bool{false})
	require.True(t, ok)
	assert.Equal(t, "00", r.Command().String())

	assert.Len(t, mirrored, BufferSize)
	assert.True(t, mirrored[0])
	require.Len(t, frames, 1)
	m, found := FindSyncMarkers(&frames[0], DefaultBands)
	require.True(t, found)
	assert.Equal(t, Markers{3, 5}, m)
}

func TestReceiverInitialize(t *testing.T) {
	r := NewReceiver(0, Decoder{Bands: DefaultBands})
	f := &feeder{r: r}
	_, ok := f.frame(t, []uint32{short}, []bool{true})
	require.True(t, ok)
	r.Edge(true, f.now+noise)
	r.Poll()

	r.Initialize(50)
	assert.False(t, r.Locked())
	assert.False(t, r.Full())
	assert.Equal(t, 0, r.WriteIndex())
	assert.Equal(t, Command{}, r.Command())
	assert.Equal(t, TimingBuffer{}, *r.Buffer())

	r.Edge(true, 80)
	r.Poll()
	assert.Equal(t, uint32(30), r.Buffer().Interval[0])
}
