package rfremote

// Decode interprets every edge strictly between the two markers. A short
// pulse emits one digit and a long pulse emits the same digit twice; the
// digit is '1' if the pin was high after the edge, '0' otherwise.
//
// The last slot of a Command is always left as Sentinel, so a frame
// producing CommandSize or more digits fails with ErrOverflow. Any error
// returns an all-Sentinel Command.
//
// Decode does not modify buf.
func Decode(buf *TimingBuffer, m Markers, b Bands) (Command, error) {
	var cmd Command

	if m.First < 0 || m.Second >= BufferSize || m.First >= m.Second {
		return cmd, &DecodeError{Kind: ErrPatternNotFound, Index: -1}
	}

	n := 0
	for i := m.First + 1; i < m.Second; i++ {
		us := buf.Interval[i]

		var width int
		switch {
		case b.IsOne(us):
			width = 1
		case b.IsTwo(us):
			width = 2
		default:
			return Command{}, &DecodeError{Kind: ErrInvalidTiming, Index: i, Interval: us}
		}

		if n+width > CommandSize-1 {
			return Command{}, &DecodeError{Kind: ErrOverflow, Index: i, Interval: us}
		}

		digit := byte('0')
		if buf.Polarity[i] {
			digit = '1'
		}
		for ; width > 0; width-- {
			cmd[n] = digit
			n++
		}
	}

	return cmd, nil
}

// Decoder finds the sync markers in a full buffer and decodes the frame
// between them.
type Decoder struct {
	Bands Bands
	// RejectZeroMarker treats a sync gap at index 0 as absent, as the
	// original AVR firmware did. Leave false unless byte-for-byte parity
	// with that firmware is needed.
	RejectZeroMarker bool
}

// Frame decodes one full capture buffer.
func (d *Decoder) Frame(buf *TimingBuffer) (Command, error) {
	m, ok := FindSyncMarkers(buf, d.Bands)
	if !ok || (d.RejectZeroMarker && m.First == 0) {
		return Command{}, &DecodeError{Kind: ErrPatternNotFound, Index: -1}
	}
	return Decode(buf, m, d.Bands)
}
