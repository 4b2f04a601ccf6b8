package replay

import (
	"math"
	"sort"

	"github.com/pitwall/racefeed/internal/telemetry"
)

// Standing is one driver's live race state derived from the emitted stream.
type Standing struct {
	Driver   string  `json:"driver"`
	Lap      int     `json:"lap"`
	Position int     `json:"position"`
	Distance float64 `json:"distance_km"`
}

// Standings folds emitted samples into per-driver lap, distance and live
// position. Position orders by lap first, then distance into the current
// lap, with the driver code breaking exact ties. Cumulative session
// distance is reported but never ranked on: a driver who banked kilometers
// on earlier laps is not ahead of a same-lap rival further into this one.
type Standings struct {
	laps     map[string]int
	distance map[string]float64 // km from session start
	lapKm    map[string]float64 // km into the current lap
	lastTime map[string]float64
}

func NewStandings() *Standings {
	return &Standings{
		laps:     make(map[string]int),
		distance: make(map[string]float64),
		lapKm:    make(map[string]float64),
		lastTime: make(map[string]float64),
	}
}

// Update folds one sample in and returns the driver's current standing.
func (st *Standings) Update(s telemetry.Sample) Standing {
	var dkm float64
	if last, seen := st.lastTime[s.Driver]; seen {
		if dt := s.Time - last; dt > 0 {
			// speed is km/h, dt is seconds
			dkm = s.Fields[telemetry.FieldSpeed] * dt / 3600
		}
	}
	st.lastTime[s.Driver] = s.Time
	st.distance[s.Driver] += dkm

	if s.Lap > st.laps[s.Driver] {
		st.laps[s.Driver] = s.Lap
		st.lapKm[s.Driver] = 0
	}
	st.lapKm[s.Driver] += dkm

	return Standing{
		Driver:   s.Driver,
		Lap:      st.laps[s.Driver],
		Position: st.rank(s.Driver),
		Distance: roundKm(st.distance[s.Driver]),
	}
}

func (st *Standings) rank(driver string) int {
	lap, km := st.laps[driver], st.lapKm[driver]
	pos := 1
	for other := range st.lastTime {
		if other == driver {
			continue
		}
		oLap, oKm := st.laps[other], st.lapKm[other]
		if oLap > lap || (oLap == lap && oKm > km) || (oLap == lap && oKm == km && other < driver) {
			pos++
		}
	}
	return pos
}

// Snapshot returns the full ranking, leader first.
func (st *Standings) Snapshot() []Standing {
	out := make([]Standing, 0, len(st.lastTime))
	for d := range st.lastTime {
		out = append(out, Standing{
			Driver:   d,
			Lap:      st.laps[d],
			Distance: roundKm(st.distance[d]),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Lap != out[j].Lap {
			return out[i].Lap > out[j].Lap
		}
		iKm, jKm := st.lapKm[out[i].Driver], st.lapKm[out[j].Driver]
		if iKm != jKm {
			return iKm > jKm
		}
		return out[i].Driver < out[j].Driver
	})

	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

func (st *Standings) Reset() {
	st.laps = make(map[string]int)
	st.distance = make(map[string]float64)
	st.lapKm = make(map[string]float64)
	st.lastTime = make(map[string]float64)
}

func roundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}
