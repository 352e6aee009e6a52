package edge

// The edge package provides the sources that watch the RF receiver's data
// pin and report every transition to a Sink (normally an
// rfremote.Receiver).

import (
	"context"
)

// Sink receives one call per pin transition. level is the pin level after
// the transition and now a free-running microsecond clock, which may wrap.
// Implementations must not block.
type Sink interface {
	Edge(level bool, now uint32)
}

// Source watches a pin and reports its edges to a Sink.
type Source interface {
	// Now returns the current reading of the clock used for edges.
	Now() uint32
	// Start configures the pin and begins calling sink.Edge. It returns
	// once the source is running; edges stop when ctx is done or Close is
	// called.
	Start(ctx context.Context, sink Sink) error
	Close() error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(level bool, now uint32)

func (f SinkFunc) Edge(level bool, now uint32) {
	f(level, now)
}
