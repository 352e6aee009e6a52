package edge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"hive13/rfremote/rfremote"
)

// Sample is one recorded edge: the pin level after it and the time since
// the edge before it.
//
// Recordings are text, one sample per line: "<level> <interval us>", with
// level 0 or 1. Blank lines and lines starting with '#' are ignored. The
// serial sniffer uses the same format.
type Sample struct {
	Level    bool
	Interval uint32
}

func (s Sample) String() string {
	level := 0
	if s.Level {
		level = 1
	}
	return fmt.Sprintf("%d %d", level, s.Interval)
}

// ParseSample parses one line. ok is false for blank and comment lines.
func ParseSample(line string) (s Sample, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return s, false, nil
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return s, false, fmt.Errorf("malformed sample %q", line)
	}
	switch fields[0] {
	case "0":
	case "1":
		s.Level = true
	default:
		return s, false, fmt.Errorf("malformed level %q", fields[0])
	}
	us, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return s, false, fmt.Errorf("malformed interval %q: %w", fields[1], err)
	}
	s.Interval = uint32(us)
	return s, true, nil
}

// ReadRecording reads every sample from r.
func ReadRecording(r io.Reader) ([]Sample, error) {
	var samples []Sample
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		s, ok, err := ParseSample(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if ok {
			samples = append(samples, s)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// WriteRecording writes samples to w, preceded by an optional comment.
func WriteRecording(w io.Writer, comment string, samples []Sample) error {
	bw := bufio.NewWriter(w)
	if comment != "" {
		fmt.Fprintf(bw, "# %s\n", comment)
	}
	for _, s := range samples {
		fmt.Fprintln(bw, s)
	}
	return bw.Flush()
}

// SamplesFromBuffer converts a capture buffer into samples.
func SamplesFromBuffer(buf *rfremote.TimingBuffer) []Sample {
	samples := make([]Sample, len(buf.Interval))
	for i := range buf.Interval {
		samples[i] = Sample{Level: buf.Polarity[i], Interval: buf.Interval[i]}
	}
	return samples
}

// Play sends samples to sink, starting the clock at start. If paced, it
// sleeps for each interval first, reproducing the recording in real time;
// otherwise it sends them as fast as possible.
func Play(ctx context.Context, samples []Sample, sink Sink, start uint32, paced bool) error {
	now := start
	for _, s := range samples {
		if paced {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(s.Interval) * time.Microsecond):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		now += s.Interval
		sink.Edge(s.Level, now)
	}
	return nil
}

// Feed runs samples through r without dropping any: each edge is drained
// before the next one is captured. It returns every command decoded.
func Feed(r *rfremote.Receiver, samples []Sample, start uint32) []rfremote.Command {
	var cmds []rfremote.Command
	now := start
	for _, s := range samples {
		now += s.Interval
		r.Edge(s.Level, now)
		for r.Locked() || r.Full() {
			if cmd, ok := r.Poll(); ok {
				cmds = append(cmds, cmd)
			}
		}
	}
	return cmds
}

// Replay is a Source that plays back a recording.
type Replay struct {
	Samples []Sample
	// Sleep for each interval rather than sending as fast as possible
	Paced bool

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (r *Replay) Now() uint32 {
	return 0
}

func (r *Replay) Start(ctx context.Context, sink Sink) error {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.err = Play(ctx, r.Samples, sink, 0, r.Paced)
	}()
	return nil
}

// Done is closed once every sample has been sent.
func (r *Replay) Done() <-chan struct{} {
	return r.done
}

func (r *Replay) Close() error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	<-r.done
	if r.err == context.Canceled {
		return nil
	}
	return r.err
}
