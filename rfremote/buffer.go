package rfremote

import "strings"

// TimingBuffer holds one capture cycle: the pin level after each edge and
// the time, in microseconds, since the edge before it.
type TimingBuffer struct {
	Polarity [BufferSize]bool
	Interval [BufferSize]uint32
}

// Reset zeroes every slot.
func (tb *TimingBuffer) Reset() {
	*tb = TimingBuffer{}
}

// Set stores one edge at index i.
func (tb *TimingBuffer) Set(i int, level bool, us uint32) {
	tb.Polarity[i] = level
	tb.Interval[i] = us
}

// Sentinel marks an unset Command slot.
const Sentinel = 0

// Command is a decoded frame: '1' and '0' digits followed by Sentinel
// bytes.
type Command [CommandSize]byte

// Reset sets every slot back to Sentinel.
func (c *Command) Reset() {
	*c = Command{}
}

// Len returns the number of digits before the first Sentinel.
func (c *Command) Len() int {
	for i, b := range c {
		if b == Sentinel {
			return i
		}
	}
	return len(c)
}

// String returns the digits of the command.
func (c Command) String() string {
	return string(c[:c.Len()])
}

// Bits returns the digits as 0/1 values.
func (c Command) Bits() []byte {
	n := c.Len()
	bits := make([]byte, n)
	for i := 0; i < n; i++ {
		bits[i] = c[i] - '0'
	}
	return bits
}

// ParseCommand builds a Command from a digit string such as "1001".
func ParseCommand(s string) (Command, error) {
	var c Command
	if len(s) > CommandSize-1 {
		return c, ErrOverflow
	}
	if strings.Trim(s, "01") != "" {
		return c, ErrInvalidDigit
	}
	copy(c[:], s)
	return c, nil
}
