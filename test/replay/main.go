package main

import (
	"flag"
	"log"
	"os"

	"hive13/rfremote/edge"
	"hive13/rfremote/rfremote"
)

// Decode a recording (as saved by `rfremote --record`) offline and print
// every command found in it.
func main() {
	rejectZero := flag.Bool("reject-zero", false, "Ignore sync gaps at buffer index 0")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: %s [-reject-zero] recording.txt", os.Args[0])
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	samples, err := edge.ReadRecording(f)
	f.Close()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%d samples, %d full frames", len(samples), len(samples)/rfremote.BufferSize)

	rx := rfremote.NewReceiver(0, rfremote.Decoder{
		Bands:            rfremote.DefaultBands,
		RejectZeroMarker: *rejectZero,
	})
	rx.OnFrame = func(buf *rfremote.TimingBuffer) {
		m, ok := rfremote.FindSyncMarkers(buf, rfremote.DefaultBands)
		if !ok {
			log.Printf("Frame: no sync pattern")
			return
		}
		log.Printf("Frame: sync gaps at %d and %d", m.First, m.Second)
	}

	for _, cmd := range edge.Feed(rx, samples, 0) {
		log.Printf("Command: %s (%d bits)", cmd, cmd.Len())
	}
	log.Printf("Stats: %+v", rx.Stats())
}
