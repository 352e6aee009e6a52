package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"hive13/rfremote/edge"
	"hive13/rfremote/rfremote"
)

// Capture raw frames from the RF receiver and write them to stdout in the
// recording format, decoded or not. Useful to tune timing bands for a new
// remote.
func main() {
	chip := flag.String("chip", "gpiochip0", "GPIO chip")
	offset := flag.Int("offset", 27, "Line offset of the RF data pin")
	frames := flag.Int("frames", 1, "Number of frames to capture")
	interval := flag.Duration("interval", 100*time.Microsecond, "Sleep between polls when idle")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src := &edge.GPIOD{Chip: *chip, Offset: *offset, PullUp: true}
	rx := rfremote.NewReceiver(src.Now(), rfremote.Decoder{Bands: rfremote.DefaultBands})

	n := 0
	rx.OnFrame = func(buf *rfremote.TimingBuffer) {
		n++
		if err := edge.WriteRecording(os.Stdout, "frame", edge.SamplesFromBuffer(buf)); err != nil {
			log.Fatal(err)
		}
	}

	if err := src.Start(ctx, rx); err != nil {
		log.Fatal(err)
	}
	defer src.Close()
	log.Printf("Chip=%s offset=%d, waiting for %d frame(s)...", *chip, *offset, *frames)

	capture(ctx, rx, func() bool { return n >= *frames }, func() { time.Sleep(*interval) })
	log.Printf("Stats: %+v", rx.Stats())
}

// capture polls rx until done reports true or ctx ends, calling idle
// whenever there is nothing to drain or decode.
func capture(ctx context.Context, rx *rfremote.Receiver, done func() bool, idle func()) {
	for !done() && ctx.Err() == nil {
		if cmd, ok := rx.Poll(); ok {
			log.Printf("Decoded: %s", cmd)
			continue
		}
		if !rx.Locked() && !rx.Full() {
			idle()
		}
	}
}
