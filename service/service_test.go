package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive13/rfremote/config"
	"hive13/rfremote/edge"
	"hive13/rfremote/mqtt"
	"hive13/rfremote/relay"
	"hive13/rfremote/rfremote"
)

// pacedSource waits for the receiver to drain each edge before sending
// the next one, so nothing is dropped however slowly the loop polls.
type pacedSource struct {
	rx      *rfremote.Receiver
	samples []edge.Sample
	done    chan struct{}
}

func newPacedSource(rx *rfremote.Receiver, samples []edge.Sample) *pacedSource {
	return &pacedSource{rx: rx, samples: samples, done: make(chan struct{})}
}

func (p *pacedSource) Now() uint32 { return 0 }

// wait blocks until every sample has been sent.
func (p *pacedSource) wait(t *testing.T) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(10 * time.Second):
		t.Fatal("source did not finish")
	}
}

func (p *pacedSource) Start(ctx context.Context, sink edge.Sink) error {
	go func() {
		defer close(p.done)
		var now uint32
		for _, s := range p.samples {
			for p.rx.Locked() || p.rx.Full() {
				select {
				case <-ctx.Done():
					return
				case <-time.After(20 * time.Microsecond):
				}
			}
			now += s.Interval
			sink.Edge(s.Level, now)
		}
	}()
	return nil
}

func (p *pacedSource) Close() error { return nil }

type fakeRelays struct {
	mu    sync.Mutex
	fired []string
}

func (f *fakeRelays) Trigger(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "door" {
		return false, relay.UnknownRelayError{Name: name}
	}
	f.fired = append(f.fired, name)
	return true, nil
}

func (f *fakeRelays) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fired...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []mqtt.Event
}

func (f *fakePublisher) Publish(ev mqtt.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) list() []mqtt.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mqtt.Event(nil), f.events...)
}

// frame returns one full buffer of samples with pulses between two sync
// gaps.
func frame(pulses ...edge.Sample) []edge.Sample {
	samples := []edge.Sample{{Level: true, Interval: 70}, {Level: false, Interval: 11000}}
	samples = append(samples, pulses...)
	samples = append(samples, edge.Sample{Level: true, Interval: 11000})
	for len(samples) < rfremote.BufferSize {
		samples = append(samples, edge.Sample{Level: len(samples)%2 == 0, Interval: 70})
	}
	return samples
}

func newTestService(t *testing.T, samples []edge.Sample) (*Service, *fakeRelays, *fakePublisher, *pacedSource) {
	t.Helper()
	cfg := config.Defaults()
	cfg.PollInterval = 50 * time.Microsecond
	cfg.Relays = []relay.Config{{Name: "door", Pin: 17, Hold: time.Second}}
	cfg.Bindings = map[string]string{"1001": "door", "11": "garage"}

	rx := rfremote.NewReceiver(0, rfremote.Decoder{Bands: cfg.Bands})
	src := newPacedSource(rx, samples)
	relays := &fakeRelays{}
	pub := &fakePublisher{}
	s := &Service{
		Config:   cfg,
		Log:      zerolog.Nop(),
		Receiver: rx,
		Source:   src,
		Relays:   relays,
		Events:   pub,
	}
	return s, relays, pub, src
}

func serve(t *testing.T, s *Service) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})
	return cancel
}

func TestServiceDispatchesDecodedCommands(t *testing.T) {
	samples := frame(
		edge.Sample{Level: true, Interval: 500},
		edge.Sample{Level: false, Interval: 1000},
		edge.Sample{Level: true, Interval: 500})
	samples = append(samples, frame(edge.Sample{Level: true, Interval: 990})...)
	samples = append(samples, frame(edge.Sample{Level: true, Interval: 750})...)

	s, relays, pub, src := newTestService(t, samples)
	s.Handler()
	serve(t, s)

	src.wait(t)

	require.Eventually(t, func() bool { return len(pub.list()) == 2 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return s.Receiver.Stats().Frames == 3 }, 5*time.Second, time.Millisecond)

	assert.Equal(t, []string{"door"}, relays.list(), "garage is bound but not configured")

	events := pub.list()
	assert.Equal(t, "1001", events[0].Command)
	assert.Equal(t, "door", events[0].Relay)
	assert.Equal(t, FromRF, events[0].Source)
	assert.Equal(t, "11", events[1].Command)

	st := s.Receiver.Stats()
	assert.Equal(t, uint64(2), st.Decoded)
	assert.Equal(t, uint64(1), st.InvalidTiming)
	assert.Equal(t, uint64(0), st.Dropped)

	last := s.LastCommand()
	assert.Equal(t, "11", last.Command)
}

func TestServiceIgnoresEmptyCommand(t *testing.T) {
	samples := frame()
	samples = append(samples, frame(edge.Sample{Level: true, Interval: 500})...)
	s, relays, pub, src := newTestService(t, samples)
	s.Handler()
	serve(t, s)

	src.wait(t)
	require.Eventually(t, func() bool { return s.Receiver.Stats().Frames == 2 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(pub.list()) == 1 }, 5*time.Second, time.Millisecond)

	assert.Equal(t, uint64(2), s.Receiver.Stats().Decoded)
	assert.Equal(t, "1", pub.list()[0].Command)
	assert.Empty(t, relays.list())
	assert.Equal(t, "1", s.LastCommand().Command)
}

func TestServiceHTTP(t *testing.T) {
	s, relays, pub, _ := newTestService(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	serve(t, s)

	post := func(cmd string) *http.Response {
		resp, err := http.PostForm(srv.URL+triggerURL, url.Values{triggerKeyCommand: {cmd}})
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusOK, post("1001").StatusCode)
	assert.Equal(t, []string{"door"}, relays.list())

	assert.Equal(t, http.StatusNotFound, post("0000").StatusCode, "unbound command")
	assert.Equal(t, http.StatusNotFound, post("11").StatusCode, "unknown relay")
	assert.Equal(t, http.StatusBadRequest, post("10x1").StatusCode)
	assert.Equal(t, http.StatusBadRequest, post("").StatusCode)

	resp, err := http.Get(srv.URL + triggerURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + statusURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.NotNil(t, st.Last)
	assert.Equal(t, "11", st.Last.Command)
	assert.Equal(t, FromHTTP, st.Last.Source)

	require.Eventually(t, func() bool { return len(pub.list()) == 3 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, FromHTTP, pub.list()[0].Source)
}

func TestServiceRecordsFrames(t *testing.T) {
	samples := frame(edge.Sample{Level: true, Interval: 500})
	s, _, _, src := newTestService(t, samples)
	s.Config.RecordDir = t.TempDir()
	s.Handler()
	serve(t, s)

	src.wait(t)
	var files []string
	require.Eventually(t, func() bool {
		files, _ = filepath.Glob(filepath.Join(s.Config.RecordDir, "frame-*.txt"))
		return len(files) == 1
	}, 5*time.Second, 5*time.Millisecond)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	got, err := edge.ReadRecording(f)
	require.NoError(t, err)
	assert.Equal(t, samples, got)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# captured "))
}
