package model

import "time"

// SiteState is the observing state of a site as tracked by the change
// monitor.
type SiteState string

const (
	SiteUnblocked SiteState = "UNBLOCKED"
	SiteBlocked   SiteState = "BLOCKED"
)

// String returns the string representation of the site state.
func (s SiteState) String() string {
	return string(s)
}

// NightEvents are the domain events known for one site and night date,
// as supplied by the environment and resource services.
type NightEvents struct {
	InitialConditions *VariantSnapshot
	Weather           []WeatherReading
	Closures          []InterruptionWindow
	Faults            []InterruptionWindow
	ToOs              []ToOWindow
}

// WeatherReading is a timestamped conditions snapshot.
type WeatherReading struct {
	Time    time.Time
	Variant VariantSnapshot
}

// InterruptionWindow is a fault or closure interval. A zero End means the
// source reported no end.
type InterruptionWindow struct {
	ID     string
	Start  time.Time
	End    time.Time
	Reason string
}

// ToOWindow is a target-of-opportunity activation.
type ToOWindow struct {
	Time          time.Time
	ObservationID string
}
