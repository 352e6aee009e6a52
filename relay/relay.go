package relay

// relay drives the output pins that decoded commands act on: relays (door
// strikes, lights, etc.) that are energized for a hold time, and an
// optional debug LED that mirrors the RF data pin.

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stianeikeland/go-rpio/v4"
	"golang.org/x/time/rate"
)

// Pin is the part of rpio.Pin a relay needs.
type Pin interface {
	High()
	Low()
}

type Config struct {
	// Name commands are bound to
	Name string `yaml:"name"`
	// Pin number controlling the relay (as GPIO/BCM pin)
	Pin int `yaml:"pin"`
	// True if the relay is energized by driving the pin low
	ActiveLow bool `yaml:"active_low"`
	// Time to keep the relay energized
	Hold time.Duration `yaml:"hold"`
	// Minimum time between two triggers. Remotes repeat a frame for as
	// long as the button is held, so this keeps one press from
	// retriggering the relay over and over. Zero allows every trigger.
	MinInterval time.Duration `yaml:"min_interval"`
}

// Relay is one output that can be pulsed.
type Relay struct {
	cfg     Config
	pin     Pin
	limiter *rate.Limiter
	log     zerolog.Logger

	mu      sync.Mutex
	release *time.Timer
}

func New(cfg Config, pin Pin, log zerolog.Logger) *Relay {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	r := &Relay{
		cfg:     cfg,
		pin:     pin,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With().Str("relay", cfg.Name).Logger(),
	}
	r.set(false)
	return r
}

func (r *Relay) set(on bool) {
	if on != r.cfg.ActiveLow {
		r.pin.High()
	} else {
		r.pin.Low()
	}
}

// Trigger energizes the relay for its hold time. Triggering it again
// while it is held extends the hold. It returns false, doing nothing, if
// the relay was triggered less than MinInterval ago.
func (r *Relay) Trigger() bool {
	if !r.limiter.Allow() {
		r.log.Debug().Msg("trigger suppressed")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info().Dur("hold", r.cfg.Hold).Msg("relay on")
	r.set(true)
	if r.release != nil {
		r.release.Stop()
	}
	r.release = time.AfterFunc(r.cfg.Hold, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.set(false)
		r.log.Info().Msg("relay off")
	})
	return true
}

// Off releases the relay immediately.
func (r *Relay) Off() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.release != nil {
		r.release.Stop()
		r.release = nil
	}
	r.set(false)
}

// Generic error for a trigger naming a relay that was never configured.
type UnknownRelayError struct {
	Name string
}

func (e UnknownRelayError) Error() string {
	return fmt.Sprintf("unknown relay %q", e.Name)
}

// Bank is a set of relays addressed by name.
type Bank struct {
	relays map[string]*Relay
	closer func() error
}

// NewBank builds a bank over already configured pins. pins maps each
// relay's name to its pin.
func NewBank(cfgs []Config, pins map[string]Pin, log zerolog.Logger) (*Bank, error) {
	b := &Bank{relays: make(map[string]*Relay, len(cfgs))}
	for _, c := range cfgs {
		if _, dup := b.relays[c.Name]; dup {
			return nil, fmt.Errorf("relay %q configured twice", c.Name)
		}
		pin, ok := pins[c.Name]
		if !ok {
			return nil, UnknownRelayError{c.Name}
		}
		b.relays[c.Name] = New(c, pin, log)
	}
	return b, nil
}

// Open maps the Raspberry Pi's GPIO registers and builds a bank driving
// real pins. Close must be called to release every relay and unmap.
func Open(cfgs []Config, log zerolog.Logger) (*Bank, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	pins := make(map[string]Pin, len(cfgs))
	for _, c := range cfgs {
		p := rpio.Pin(c.Pin)
		p.Output()
		pins[c.Name] = p
	}
	b, err := NewBank(cfgs, pins, log)
	if err != nil {
		rpio.Close()
		return nil, err
	}
	b.closer = rpio.Close
	return b, nil
}

// Trigger triggers the named relay. triggered is false if it was
// suppressed by its MinInterval.
func (b *Bank) Trigger(name string) (triggered bool, err error) {
	r, ok := b.relays[name]
	if !ok {
		return false, UnknownRelayError{name}
	}
	return r.Trigger(), nil
}

// Names lists the configured relays.
func (b *Bank) Names() []string {
	names := make([]string, 0, len(b.relays))
	for n := range b.relays {
		names = append(names, n)
	}
	return names
}

// Close releases every relay, leaving the outputs de-energized.
func (b *Bank) Close() error {
	for _, r := range b.relays {
		r.Off()
	}
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// DebugLED returns a function that mirrors a level onto a GPIO/BCM pin,
// suitable for rfremote.Receiver.Mirror. rpio must already be open.
func DebugLED(pin int) func(level bool) {
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	return func(level bool) {
		if level {
			p.High()
		} else {
			p.Low()
		}
	}
}
