package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hive13/rfremote/mqtt"
	"hive13/rfremote/relay"
	"hive13/rfremote/rfremote"
)

// Source kinds.
const (
	SourceGPIOD  = "gpiod"
	SourcePeriph = "periph"
	SourceSerial = "serial"
	SourceReplay = "replay"
)

// Config is the complete receiver service configuration.
type Config struct {
	Log    LogConfig      `yaml:"log"`
	Source SourceConfig   `yaml:"source"`
	Bands  rfremote.Bands `yaml:"bands"`
	// Treat a sync gap at buffer index 0 as absent (original firmware
	// behaviour)
	RejectZeroMarker bool `yaml:"reject_zero_marker"`
	// Time the main loop sleeps between two polls of the receiver. Edges
	// arriving faster than this are dropped.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Pin number for a debug LED mirroring the RF pin (as GPIO/BCM pin),
	// -1 to disable
	DebugPin int            `yaml:"debug_pin"`
	Relays   []relay.Config `yaml:"relays"`
	// Decoded command (e.g. "0110100110") to relay name
	Bindings map[string]string `yaml:"bindings"`
	MQTT     mqtt.Config       `yaml:"mqtt"`
	HTTP     HTTPConfig        `yaml:"http"`
	// Directory to dump every captured buffer to, disabled if empty
	RecordDir string `yaml:"record_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	// console or json
	Format string `yaml:"format"`
	// stderr, stdout or a file path
	Output string `yaml:"output"`
}

type SourceConfig struct {
	// One of gpiod, periph, serial, replay
	Kind string `yaml:"kind"`
	// gpiod: chip name and line offset
	Chip   string `yaml:"chip"`
	Offset int    `yaml:"offset"`
	// periph: pin name
	Pin string `yaml:"pin"`
	// gpiod, periph: enable the pin's pull-up
	PullUp bool `yaml:"pull_up"`
	// serial: sniffer device and baud rate
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// replay: recording to play back, in real time if Paced
	File  string `yaml:"file"`
	Paced bool   `yaml:"paced"`
}

type HTTPConfig struct {
	// Address for HTTP server to listen on, disabled if empty
	ListenAddr string `yaml:"listen"`
}

// Defaults returns the configuration used for anything a file leaves out.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Source: SourceConfig{
			Kind:   SourceGPIOD,
			Chip:   "gpiochip0",
			Offset: 27,
			PullUp: true,
			Baud:   115200,
		},
		Bands:        rfremote.DefaultBands,
		PollInterval: 100 * time.Microsecond,
		DebugPin:     -1,
		MQTT: mqtt.Config{
			ClientID:     "rfremote",
			TopicCommand: "rfremote/command",
		},
		HTTP: HTTPConfig{
			ListenAddr: ":9000",
		},
	}
}

// Read reads a YAML file over the defaults, without validating it. A
// missing file just yields the defaults.
func Read(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load is Read followed by Validate.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
