package edge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warthog618/gpiod"
	"golang.org/x/sys/unix"
)

// GPIOD reads edges from a Linux GPIO character device. The kernel
// timestamps each edge, so the reported times do not depend on how quickly
// the event handler runs.
type GPIOD struct {
	// GPIO chip (e.g. "gpiochip0")
	Chip string
	// Line offset on the chip (BCM pin number on a Raspberry Pi)
	Offset int
	// Enable the internal pull-up (requires Linux 5.5 or later)
	PullUp bool
	Log    zerolog.Logger

	line *gpiod.Line
}

// Now reads CLOCK_MONOTONIC, the clock gpiod timestamps events with.
func (g *GPIOD) Now() uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return toMicros(time.Duration(ts.Nano()))
}

func (g *GPIOD) Start(ctx context.Context, sink Sink) error {
	opts := []gpiod.LineReqOption{
		gpiod.WithConsumer("rfremote"),
		gpiod.WithBothEdges,
		gpiod.WithEventHandler(func(evt gpiod.LineEvent) {
			sink.Edge(evt.Type == gpiod.LineEventRisingEdge, toMicros(evt.Timestamp))
		}),
	}
	if g.PullUp {
		opts = append(opts, gpiod.WithPullUp)
	}

	line, err := gpiod.RequestLine(g.Chip, g.Offset, opts...)
	if err != nil {
		return fmt.Errorf("request %s line %d: %w", g.Chip, g.Offset, err)
	}
	g.line = line
	g.Log.Info().Str("chip", g.Chip).Int("offset", g.Offset).Msg("watching edges")

	go func() {
		<-ctx.Done()
		g.Close()
	}()
	return nil
}

func (g *GPIOD) Close() error {
	if g.line == nil {
		return nil
	}
	err := g.line.Close()
	if err == gpiod.ErrClosed {
		return nil
	}
	return err
}

func toMicros(d time.Duration) uint32 {
	return uint32(d / time.Microsecond)
}
