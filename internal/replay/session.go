package replay

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pitwall/racefeed/internal/telemetry"
)

var ErrInvalidSession = errors.New("invalid session")

// cursor points at the next sample to emit for one driver. It only moves
// forward; Restart is the single exception.
type cursor struct {
	driver string
	next   int
}

// Session owns the loaded tracks and one cursor per driver. Drivers are
// visited round-robin in ascending driver order; an exhausted driver drops
// out of the rotation without disturbing the order of the rest. Not safe
// for concurrent use: the Pacer is the only caller.
type Session struct {
	tracks  map[string]telemetry.Track
	cursors []cursor // fixed rotation order
	turn    int      // rotation position of the next candidate
	emitted int
	total   int
}

// NewSession validates every track and freezes the rotation order.
func NewSession(tracks map[string]telemetry.Track) (*Session, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no tracks", ErrInvalidSession)
	}

	drivers := make([]string, 0, len(tracks))
	total := 0
	for driver, track := range tracks {
		if err := track.Validate(); err != nil {
			return nil, fmt.Errorf("%w: driver %s: %s", ErrInvalidSession, driver, err)
		}
		drivers = append(drivers, driver)
		total += len(track)
	}
	sort.Strings(drivers)

	cursors := make([]cursor, len(drivers))
	for i, d := range drivers {
		cursors[i] = cursor{driver: d}
	}

	return &Session{
		tracks:  tracks,
		cursors: cursors,
		total:   total,
	}, nil
}

// Next returns the next sample in round-robin order, skipping exhausted
// drivers. The second return is false exactly when every driver is
// exhausted; that is the normal terminal state, not an error.
func (s *Session) Next() (telemetry.Sample, bool) {
	n := len(s.cursors)
	for i := 0; i < n; i++ {
		c := &s.cursors[(s.turn+i)%n]
		track := s.tracks[c.driver]
		if c.next >= len(track) {
			continue
		}

		sample := track[c.next]
		c.next++
		s.turn = (s.turn + i + 1) % n
		s.emitted++
		return sample, true
	}
	return telemetry.Sample{}, false
}

// Restart rewinds every cursor to the start of its track.
func (s *Session) Restart() {
	for i := range s.cursors {
		s.cursors[i].next = 0
	}
	s.turn = 0
	s.emitted = 0
}

// Drivers returns the rotation order.
func (s *Session) Drivers() []string {
	drivers := make([]string, len(s.cursors))
	for i, c := range s.cursors {
		drivers[i] = c.driver
	}
	return drivers
}

func (s *Session) Total() int {
	return s.total
}

func (s *Session) Emitted() int {
	return s.emitted
}

func (s *Session) progress() Progress {
	drivers := make(map[string]int, len(s.cursors))
	for _, c := range s.cursors {
		drivers[c.driver] = c.next
	}
	return Progress{
		Emitted:  s.emitted,
		Total:    s.total,
		Drivers:  drivers,
		Complete: s.emitted == s.total,
	}
}
