package config

import (
	"fmt"
	"strings"

	"hive13/rfremote/rfremote"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for consistency. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateSource(cfg, ve)
	validateBands(cfg.Bands, ve)
	validateRelays(cfg, ve)
	if cfg.PollInterval <= 0 {
		ve.Add("poll_interval must be positive")
	}
	if cfg.MQTT.BrokerAddr != "" && cfg.MQTT.TopicCommand == "" {
		ve.Add("mqtt.topic_command is required when mqtt.broker is set")
	}
	if cfg.MQTT.QoS > 2 {
		ve.Add("mqtt.qos must be 0, 1 or 2")
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		ve.Add("log.format %q must be console or json", cfg.Log.Format)
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateSource(cfg *Config, ve *ValidationError) {
	s := cfg.Source
	switch s.Kind {
	case SourceGPIOD:
		if s.Chip == "" {
			ve.Add("source.chip is required for gpiod")
		}
		if s.Offset < 0 {
			ve.Add("source.offset must not be negative")
		}
	case SourcePeriph:
		if s.Pin == "" {
			ve.Add("source.pin is required for periph")
		}
	case SourceSerial:
		if s.Port == "" {
			ve.Add("source.port is required for serial")
		}
	case SourceReplay:
		if s.File == "" {
			ve.Add("source.file is required for replay")
		}
	default:
		ve.Add("unknown source.kind %q", s.Kind)
	}
}

type band struct {
	name     string
	min, max uint32
}

func validateBands(b rfremote.Bands, ve *ValidationError) {
	bands := []band{
		{"one", b.OneMin, b.OneMax},
		{"two", b.TwoMin, b.TwoMax},
		{"pattern", b.PatternMin, b.PatternMax},
	}
	for _, bd := range bands {
		// Bounds are exclusive, so an interval needs max-min >= 2.
		if bd.max <= bd.min+1 {
			ve.Add("bands.%s_max (%d) must exceed %s_min (%d) by at least 2",
				bd.name, bd.max, bd.name, bd.min)
		}
	}
	for i := range bands {
		for j := i + 1; j < len(bands); j++ {
			a, c := bands[i], bands[j]
			if a.min+1 < c.max && c.min+1 < a.max {
				ve.Add("bands %s and %s overlap", a.name, c.name)
			}
		}
	}
}

func validateRelays(cfg *Config, ve *ValidationError) {
	names := make(map[string]bool)
	for i, r := range cfg.Relays {
		if r.Name == "" {
			ve.Add("relays[%d].name is required", i)
			continue
		}
		if names[r.Name] {
			ve.Add("relay %q configured twice", r.Name)
		}
		names[r.Name] = true
		if r.Hold <= 0 {
			ve.Add("relay %q: hold must be positive", r.Name)
		}
		if r.Pin < 0 {
			ve.Add("relay %q: pin must not be negative", r.Name)
		}
		if r.Pin == cfg.DebugPin {
			ve.Add("relay %q: pin %d is also the debug pin", r.Name, r.Pin)
		}
	}
	for cmd, name := range cfg.Bindings {
		if _, err := rfremote.ParseCommand(cmd); err != nil {
			ve.Add("binding %q: %v", cmd, err)
		}
		if !names[name] {
			ve.Add("binding %q: unknown relay %q", cmd, name)
		}
	}
}
