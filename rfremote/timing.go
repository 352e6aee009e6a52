package rfremote

// The rfremote package decodes the pulse-timing signal of a fixed-protocol
// 433MHz remote control. Edges are captured one at a time by Edge (called
// from the platform's edge callback) and drained into a TimingBuffer by
// Poll (called from the host's main loop). Once the buffer fills, it is
// scanned for two long sync gaps, and every edge between them is decoded
// into a string of '1'/'0' digits.

const (
	// BufferSize is the number of edges captured per decode cycle.
	BufferSize = 256
	// CommandSize is the capacity of a decoded command, including the
	// trailing sentinel slot.
	CommandSize = 64
)

// Bands holds the timing windows, in microseconds, that classify an
// interval between two edges. All comparisons are exclusive on both ends.
type Bands struct {
	// Sync gap bounding the data region of a frame
	PatternMin uint32 `yaml:"pattern_min"`
	PatternMax uint32 `yaml:"pattern_max"`
	// Short pulse, emits one digit
	OneMin uint32 `yaml:"one_min"`
	OneMax uint32 `yaml:"one_max"`
	// Long pulse, emits the same digit twice
	TwoMin uint32 `yaml:"two_min"`
	TwoMax uint32 `yaml:"two_max"`
}

// DefaultBands matches the PPA TOK learning remote: 10-15ms sync gaps,
// ~500us short pulses, ~1000us long pulses.
var DefaultBands = Bands{
	PatternMin: 10000,
	PatternMax: 15000,
	OneMin:     400,
	OneMax:     600,
	TwoMin:     900,
	TwoMax:     1100,
}

func within(v, min, max uint32) bool {
	return v > min && v < max
}

// IsPattern reports whether an interval is a sync gap.
func (b Bands) IsPattern(us uint32) bool {
	return within(us, b.PatternMin, b.PatternMax)
}

// IsOne reports whether an interval is a short (single digit) pulse.
func (b Bands) IsOne(us uint32) bool {
	return within(us, b.OneMin, b.OneMax)
}

// IsTwo reports whether an interval is a long (double digit) pulse.
func (b Bands) IsTwo(us uint32) bool {
	return within(us, b.TwoMin, b.TwoMax)
}
