package archive

import "fmt"

// Session codes accepted by the archive. S is the sprint race.
var sessionCodes = map[string]bool{
	"FP1": true,
	"FP2": true,
	"FP3": true,
	"Q":   true,
	"S":   true,
	"R":   true,
}

// Descriptor identifies one Grand Prix session in the historical archive.
// Event is the archive's event slug, e.g. "monza" or "sao-paulo".
type Descriptor struct {
	Year    int    `json:"year"`
	Event   string `json:"event"`
	Session string `json:"session"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%d/%s/%s", d.Year, d.Event, d.Session)
}

func (d Descriptor) Validate() error {
	// Car telemetry is only archived from the 2018 season onward.
	if d.Year < 2018 {
		return fmt.Errorf("no telemetry before 2018, got year %d", d.Year)
	}
	if d.Event == "" {
		return fmt.Errorf("event is required")
	}
	if !sessionCodes[d.Session] {
		return fmt.Errorf("unknown session code %q", d.Session)
	}
	return nil
}
