package edge

import (
	"bufio"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// Serial reads edges from a sniffer microcontroller that timestamps the RF
// pin itself and streams samples in the recording format, one per line.
// The clock is rebuilt from the intervals, so it is exact no matter how
// late lines arrive.
type Serial struct {
	// Serial device (e.g. "/dev/ttyACM0")
	Port string
	Baud int
	Log  zerolog.Logger

	port serial.Port
	now  atomic.Uint32
	done chan struct{}
}

func (s *Serial) Now() uint32 {
	return s.now.Load()
}

func (s *Serial) Start(ctx context.Context, sink Sink) error {
	baud := s.Baud
	if baud == 0 {
		baud = 115200
	}
	port, err := serial.Open(s.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.Port, err)
	}
	s.port = port
	s.done = make(chan struct{})

	go func() {
		<-ctx.Done()
		s.port.Close()
	}()
	go s.read(sink)

	s.Log.Info().Str("port", s.Port).Int("baud", baud).Msg("reading edges")
	return nil
}

func (s *Serial) read(sink Sink) {
	defer close(s.done)
	sc := bufio.NewScanner(s.port)
	for sc.Scan() {
		sample, ok, err := ParseSample(sc.Text())
		if err != nil {
			s.Log.Warn().Err(err).Msg("bad sample from sniffer")
			continue
		}
		if !ok {
			continue
		}
		now := s.now.Add(sample.Interval)
		sink.Edge(sample.Level, now)
	}
	if err := sc.Err(); err != nil {
		s.Log.Debug().Err(err).Msg("serial read stopped")
	}
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	<-s.done
	return err
}
