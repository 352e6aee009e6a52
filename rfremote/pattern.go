package rfremote

// Markers are the buffer indices of the two sync gaps that bound the data
// region of a frame. They are only meaningful for the buffer they were
// found in.
type Markers struct {
	First  int
	Second int
}

// FindSyncMarkers scans the buffer left to right and returns the first two
// indices whose interval falls in the sync pattern band. It stops as soon
// as the second one is found. ok is false if there are fewer than two.
func FindSyncMarkers(buf *TimingBuffer, b Bands) (m Markers, ok bool) {
	found := 0
	for i, us := range buf.Interval {
		if !b.IsPattern(us) {
			continue
		}
		if found == 0 {
			m.First = i
			found++
			continue
		}
		m.Second = i
		return m, true
	}
	return Markers{}, false
}
