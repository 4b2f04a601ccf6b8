package telemetry

// Canonical channel names for car telemetry fields. All values are numeric;
// categorical channels (gear, DRS state) carry their raw archive codes.
const (
	FieldSpeed    = "speed"
	FieldRPM      = "rpm"
	FieldGear     = "gear"
	FieldThrottle = "throttle"
	FieldBrake    = "brake"
	FieldDRS      = "drs"
)

// Fields holds one sample's channel readings keyed by channel name.
type Fields map[string]float64

// Sample is a single car telemetry reading. Time is seconds from session
// start. Seq is the per-driver sequence index, dense from 0. Immutable once
// loaded.
type Sample struct {
	Driver string  `json:"driver"`
	Time   float64 `json:"time"`
	Seq    int     `json:"seq"`
	Lap    int     `json:"lap"`
	Fields Fields  `json:"fields"`
}

// Lap is one completed lap from the archive's timing data.
type Lap struct {
	Driver  string  `json:"driver"`
	Lap     int     `json:"lap"`
	Seconds float64 `json:"seconds"`
}
