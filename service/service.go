package service

// service is the high-level receiver that connects the RF edge source,
// the decoder, the relays, MQTT and the HTTP server.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hive13/rfremote/config"
	"hive13/rfremote/edge"
	"hive13/rfremote/logging"
	"hive13/rfremote/mqtt"
	"hive13/rfremote/relay"
	"hive13/rfremote/rfremote"
)

// Command sources reported in events.
const (
	FromRF   = "rf"
	FromHTTP = "http"
)

// Triggerer fires a named relay.
type Triggerer interface {
	Trigger(name string) (bool, error)
}

// Publisher sends command events somewhere (MQTT).
type Publisher interface {
	Publish(ev mqtt.Event) error
}

// TriggerRequest is a request to act on a command as if it had been
// received over RF (received via HTTP).
//
// Whoever receives this request must send something back over 'Reply' -
// nil if the command was dispatched, or else an error for why it was not.
// Once this is done, the channel should be closed.
type TriggerRequest struct {
	Command rfremote.Command
	Reply   chan<- error
}

// UnboundCommandError is returned for an HTTP trigger whose command is not
// bound to any relay.
type UnboundCommandError struct {
	Command string
}

func (e UnboundCommandError) Error() string {
	return fmt.Sprintf("command %s is not bound to a relay", e.Command)
}

// Service polls a Receiver fed by Source and dispatches what it decodes.
type Service struct {
	Config   *config.Config
	Log      zerolog.Logger
	Receiver *rfremote.Receiver
	Source   edge.Source
	// Relays may be nil if no relays are configured.
	Relays Triggerer
	// Events may be nil if MQTT is disabled.
	Events Publisher

	triggers chan TriggerRequest
	events   chan mqtt.Event
	frames   chan rfremote.TimingBuffer

	mu   sync.Mutex
	last Last
}

// Last describes the most recently dispatched command.
type Last struct {
	Command string    `json:"command"`
	Relay   string    `json:"relay,omitempty"`
	Source  string    `json:"source"`
	Time    time.Time `json:"time"`
}

func (s *Service) init() {
	s.triggers = make(chan TriggerRequest)
	s.events = make(chan mqtt.Event, 32)
	s.frames = make(chan rfremote.TimingBuffer, 4)
}

// Serve starts the source and runs the main loop until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	if s.triggers == nil {
		s.init()
	}
	log := logging.Component(s.Log, "service")

	if s.Config.RecordDir != "" {
		s.Receiver.OnFrame = func(buf *rfremote.TimingBuffer) {
			select {
			case s.frames <- *buf:
			default:
				log.Warn().Msg("recorder busy, frame not saved")
			}
		}
		go s.record(ctx)
	}
	if s.Events != nil {
		go s.publish(ctx)
	}

	if err := s.Source.Start(ctx, s.Receiver); err != nil {
		return fmt.Errorf("start edge source: %w", err)
	}
	defer s.Source.Close()

	log.Info().Msg("starting main loop")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping")
			return nil
		case rq := <-s.triggers:
			rq.Reply <- s.dispatch(rq.Command, FromHTTP)
			close(rq.Reply)
			continue
		default:
		}

		if cmd, ok := s.Receiver.Poll(); ok {
			s.dispatch(cmd, FromRF)
			continue
		}
		if !s.Receiver.Locked() && !s.Receiver.Full() {
			time.Sleep(s.Config.PollInterval)
		}
	}
}

// dispatch triggers the relay bound to cmd, if any, and publishes it. It
// runs on the main loop and must stay quick: edges are dropped while it
// runs.
func (s *Service) dispatch(cmd rfremote.Command, source string) error {
	// Adjacent sync gaps decode to nothing; no remote sends that.
	if cmd.Len() == 0 {
		s.Log.Debug().Str("component", "service").Str("source", source).Msg("empty command ignored")
		return nil
	}
	bits := cmd.String()
	name, bound := s.Config.Bindings[bits]
	now := time.Now()

	ev := s.Log.Info()
	if !bound {
		ev = s.Log.Debug()
	}
	ev.Str("component", "service").Str("command", bits).Str("source", source).
		Str("relay", name).Msg("command received")

	s.mu.Lock()
	s.last = Last{Command: bits, Relay: name, Source: source, Time: now}
	s.mu.Unlock()

	if s.Events != nil {
		select {
		case s.events <- mqtt.NewEvent(now, bits, name, source):
		default:
			s.Log.Warn().Str("component", "service").Msg("event queue full, dropping event")
		}
	}

	if !bound {
		return UnboundCommandError{bits}
	}
	if s.Relays == nil {
		return relay.UnknownRelayError{Name: name}
	}
	_, err := s.Relays.Trigger(name)
	return err
}

func (s *Service) publish(ctx context.Context) {
	log := logging.Component(s.Log, "mqtt")
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if err := s.Events.Publish(ev); err != nil {
				log.Warn().Err(err).Str("command", ev.Command).Msg("publish failed")
			}
		}
	}
}

func (s *Service) record(ctx context.Context) {
	log := logging.Component(s.Log, "recorder")
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-s.frames:
			n++
			path := filepath.Join(s.Config.RecordDir,
				fmt.Sprintf("frame-%s-%04d.txt", time.Now().Format("20060102-150405"), n))
			if err := writeFrame(path, &buf); err != nil {
				log.Warn().Err(err).Msg("unable to save frame")
				continue
			}
			log.Debug().Str("path", path).Msg("frame saved")
		}
	}
}

func writeFrame(path string, buf *rfremote.TimingBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = edge.WriteRecording(f, "captured "+time.Now().Format(time.RFC3339), edge.SamplesFromBuffer(buf))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// LastCommand returns the most recently dispatched command.
func (s *Service) LastCommand() Last {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Trigger asks the main loop to dispatch cmd, waiting up to timeout for it
// to be picked up and handled.
func (s *Service) Trigger(cmd rfremote.Command, timeout time.Duration) error {
	reply := make(chan error, 1)
	select {
	case s.triggers <- TriggerRequest{Command: cmd, Reply: reply}:
	case <-time.After(timeout):
		return errTimeout
	}
	select {
	case err := <-reply:
		return err
	case <-time.After(timeout):
		return errTimeout
	}
}

var errTimeout = errors.New("timed out waiting on main loop")

// Run builds the service from cfg, on real hardware, and runs it until ctx
// is done.
func Run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	src, err := newSource(cfg, log)
	if err != nil {
		return err
	}

	rx := rfremote.NewReceiver(src.Now(), rfremote.Decoder{
		Bands:            cfg.Bands,
		RejectZeroMarker: cfg.RejectZeroMarker,
	})
	rx.Log = logging.Component(log, "receiver")

	s := &Service{
		Config:   cfg,
		Log:      log,
		Receiver: rx,
		Source:   src,
	}
	s.init()

	if len(cfg.Relays) > 0 || cfg.DebugPin >= 0 {
		bank, err := relay.Open(cfg.Relays, logging.Component(log, "relay"))
		if err != nil {
			return err
		}
		defer bank.Close()
		s.Relays = bank
		if cfg.DebugPin >= 0 {
			rx.Mirror = relay.DebugLED(cfg.DebugPin)
		}
	}

	if cfg.MQTT.BrokerAddr != "" {
		client := mqtt.NewClient(cfg.MQTT, log)
		defer client.Disconnect(250)
		s.Events = &mqtt.Publisher{
			Client:  client,
			Topic:   cfg.MQTT.TopicCommand,
			QoS:     cfg.MQTT.QoS,
			Timeout: 5 * time.Second,
		}
	}

	if cfg.HTTP.ListenAddr != "" {
		srv := &http.Server{
			Addr:         cfg.HTTP.ListenAddr,
			Handler:      s.Handler(),
			ReadTimeout:  20 * time.Second,
			WriteTimeout: 20 * time.Second,
		}
		go func() {
			log.Info().Str("component", "http").Str("addr", srv.Addr).Msg("starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Str("component", "http").Err(err).Msg("HTTP server failed")
			}
		}()
		defer srv.Close()
	}

	return s.Serve(ctx)
}

func newSource(cfg *config.Config, log zerolog.Logger) (edge.Source, error) {
	sc := cfg.Source
	log = logging.Component(log, "edge")
	switch sc.Kind {
	case config.SourceGPIOD:
		return &edge.GPIOD{Chip: sc.Chip, Offset: sc.Offset, PullUp: sc.PullUp, Log: log}, nil
	case config.SourcePeriph:
		return &edge.Periph{Pin: sc.Pin, PullUp: sc.PullUp, Log: log}, nil
	case config.SourceSerial:
		return &edge.Serial{Port: sc.Port, Baud: sc.Baud, Log: log}, nil
	case config.SourceReplay:
		f, err := os.Open(sc.File)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		samples, err := edge.ReadRecording(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sc.File, err)
		}
		return &edge.Replay{Samples: samples, Paced: sc.Paced}, nil
	}
	return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
}
