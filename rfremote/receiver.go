package rfremote

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// States of the single capture slot shared between Edge and Poll.
const (
	// No sample pending; Edge may claim the slot.
	slotFree int32 = iota
	// Edge has claimed the slot and is filling it in.
	slotClaimed
	// A sample is waiting for Poll to drain it.
	slotPending
)

// Receiver captures edges and assembles them into frames.
//
// Edge runs in the edge callback's context and Poll in the host's main
// loop; each may run on its own goroutine, but Edge must not be called
// concurrently with itself, nor Poll with itself. The two never write the
// same field: Edge owns the sample (level, interval, lastEdge) while the
// slot is free or claimed, and Poll owns the buffer, write index and full
// flag. Handing the slot over is the only synchronization, so an edge that
// arrives while a sample is still pending, or while the buffer is full, is
// dropped.
type Receiver struct {
	// Mirror, if set, is called with the pin level on every captured edge
	// (e.g. to drive a debug LED). It runs in Edge's context and must not
	// block.
	Mirror func(level bool)
	// OnFrame, if set, is called by Poll with every full buffer before it
	// is decoded. The buffer is reset afterwards, so it must be copied to
	// be kept.
	OnFrame func(buf *TimingBuffer)
	// Log receives decode results.
	Log zerolog.Logger

	decoder Decoder

	slot atomic.Int32
	full atomic.Bool

	// Owned by Edge.
	level    bool
	interval uint32
	lastEdge uint32

	// Owned by Poll.
	buf        TimingBuffer
	writeIndex int
	cmd        Command

	counters counters
}

// NewReceiver returns an initialized Receiver. now is the current reading
// of the microsecond clock that will be passed to Edge.
func NewReceiver(now uint32, d Decoder) *Receiver {
	r := &Receiver{
		decoder: d,
		Log:     zerolog.Nop(),
	}
	r.Initialize(now)
	return r
}

// Initialize zeroes all capture state and starts a new cycle. It must not
// be called while an edge source is feeding the Receiver.
func (r *Receiver) Initialize(now uint32) {
	r.slot.Store(slotFree)
	r.full.Store(false)
	r.level = false
	r.interval = 0
	r.lastEdge = now
	r.writeIndex = 0
	r.buf.Reset()
	r.cmd.Reset()
}

// Edge records one transition of the monitored pin. level is the pin level
// after the transition and now the microsecond clock at that time; the
// clock may wrap.
//
// Edge never blocks. It drops the edge if a previous sample has not been
// drained yet or the buffer is full.
func (r *Receiver) Edge(level bool, now uint32) {
	r.counters.edges.Add(1)
	if !r.slot.CompareAndSwap(slotFree, slotClaimed) {
		r.counters.dropped.Add(1)
		return
	}
	// Poll sets full before freeing the slot, so once the slot is ours a
	// full buffer is visible here.
	if r.full.Load() {
		r.slot.Store(slotFree)
		r.counters.dropped.Add(1)
		return
	}

	r.level = level
	r.interval = now - r.lastEdge
	r.lastEdge = now

	if r.Mirror != nil {
		r.Mirror(level)
	}

	r.slot.Store(slotPending)
}

// Poll advances the receiver by one step, and returns a command once one
// has been decoded.
//
// A pending sample is copied into the buffer; once the buffer is full, the
// next call decodes it. Whatever the result, the buffer is then cleared
// and capture resumes. Poll never blocks and may be called at any rate;
// calling it too slowly only makes Edge drop more edges.
func (r *Receiver) Poll() (Command, bool) {
	if r.slot.Load() == slotPending && !r.full.Load() {
		r.drain()
		return Command{}, false
	}
	if r.full.Load() {
		return r.decodeCycle()
	}
	return Command{}, false
}

func (r *Receiver) drain() {
	r.buf.Set(r.writeIndex, r.level, r.interval)
	r.writeIndex++
	if r.writeIndex >= BufferSize {
		// Closed until decodeCycle runs. full is set before the slot is
		// released; Edge checks it after claiming the slot.
		r.writeIndex = 0
		r.full.Store(true)
	}
	r.slot.Store(slotFree)
}

func (r *Receiver) decodeCycle() (Command, bool) {
	r.counters.frames.Add(1)
	if r.OnFrame != nil {
		r.OnFrame(&r.buf)
	}

	cmd, err := r.decoder.Frame(&r.buf)
	if err != nil {
		r.cmd.Reset()
		r.counters.discard(err)
		r.Log.Debug().Err(err).Msg("frame discarded")
	} else {
		r.cmd = cmd
		r.counters.decoded.Add(1)
		r.Log.Debug().Str("command", cmd.String()).Msg("frame decoded")
	}

	r.buf.Reset()
	r.full.Store(false)
	return r.cmd, err == nil
}

// Command returns the most recently decoded command, or an all-Sentinel
// one if the last frame was discarded. Poll context only.
func (r *Receiver) Command() Command {
	return r.cmd
}

// Locked reports whether a captured sample is waiting to be drained.
func (r *Receiver) Locked() bool {
	return r.slot.Load() != slotFree
}

// Full reports whether the buffer is closed, waiting to be decoded.
func (r *Receiver) Full() bool {
	return r.full.Load()
}

// WriteIndex returns the next buffer slot Poll will fill. Poll context
// only.
func (r *Receiver) WriteIndex() int {
	return r.writeIndex
}

// Buffer returns the capture buffer. Poll context only.
func (r *Receiver) Buffer() *TimingBuffer {
	return &r.buf
}

// Stats is a snapshot of the receiver's counters.
type Stats struct {
	Edges         uint64 `json:"edges"`
	Dropped       uint64 `json:"dropped"`
	Frames        uint64 `json:"frames"`
	Decoded       uint64 `json:"decoded"`
	NoPattern     uint64 `json:"no_pattern"`
	InvalidTiming uint64 `json:"invalid_timing"`
	Overflow      uint64 `json:"overflow"`
}

// Stats may be called from any goroutine.
func (r *Receiver) Stats() Stats {
	c := &r.counters
	return Stats{
		Edges:         c.edges.Load(),
		Dropped:       c.dropped.Load(),
		Frames:        c.frames.Load(),
		Decoded:       c.decoded.Load(),
		NoPattern:     c.noPattern.Load(),
		InvalidTiming: c.invalidTiming.Load(),
		Overflow:      c.overflow.Load(),
	}
}

type counters struct {
	edges         atomic.Uint64
	dropped       atomic.Uint64
	frames        atomic.Uint64
	decoded       atomic.Uint64
	noPattern     atomic.Uint64
	invalidTiming atomic.Uint64
	overflow      atomic.Uint64
}

func (c *counters) discard(err error) {
	switch {
	case errors.Is(err, ErrPatternNotFound):
		c.noPattern.Add(1)
	case errors.Is(err, ErrInvalidTiming):
		c.invalidTiming.Add(1)
	case errors.Is(err, ErrOverflow):
		c.overflow.Add(1)
	}
}
