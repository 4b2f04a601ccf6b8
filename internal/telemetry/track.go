package telemetry

import "fmt"

// Track is one driver's telemetry samples in session order.
type Track []Sample

// Validate checks the track invariants: at least one sample, sequence
// indexes dense from 0, timestamps non-decreasing.
func (t Track) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("track is empty")
	}
	for i, s := range t {
		if s.Seq != i {
			return fmt.Errorf("sample %d: sequence index %d, want %d", i, s.Seq, i)
		}
		if i > 0 && s.Time < t[i-1].Time {
			return fmt.Errorf("sample %d: timestamp %.3f before %.3f", i, s.Time, t[i-1].Time)
		}
	}
	return nil
}
