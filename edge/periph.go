package edge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Periph reads edges through periph.io. Edges are timestamped when
// WaitForEdge returns, so expect more jitter than with GPIOD.
type Periph struct {
	// Pin name as known to periph (e.g. "GPIO27")
	Pin    string
	PullUp bool
	Log    zerolog.Logger

	pin    gpio.PinIO
	start  time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *Periph) Now() uint32 {
	if p.start.IsZero() {
		p.start = time.Now()
	}
	return toMicros(time.Since(p.start))
}

func (p *Periph) Start(ctx context.Context, sink Sink) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	pin := gpioreg.ByName(p.Pin)
	if pin == nil {
		return fmt.Errorf("pin %s not found", p.Pin)
	}
	pull := gpio.Float
	if p.PullUp {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.BothEdges); err != nil {
		return fmt.Errorf("configure %s: %w", p.Pin, err)
	}
	p.pin = pin
	p.Now()

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.watch(ctx, sink)

	p.Log.Info().Str("pin", p.Pin).Msg("watching edges")
	return nil
}

func (p *Periph) watch(ctx context.Context, sink Sink) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// Bounded wait so cancellation is noticed.
		if p.pin.WaitForEdge(100 * time.Millisecond) {
			sink.Edge(p.pin.Read() == gpio.High, p.Now())
		}
	}
}

func (p *Periph) Close() error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	return p.pin.Halt()
}
