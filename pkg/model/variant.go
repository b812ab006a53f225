package model

import "fmt"

// VariantSnapshot is the atmospheric state at a site. IQ and CC are
// percentile bins in (0, 1]; lower is better.
type VariantSnapshot struct {
	IQ        float64 `json:"iq" yaml:"iq"`
	CC        float64 `json:"cc" yaml:"cc"`
	WindDir   float64 `json:"wind_dir" yaml:"wind_dir"`
	WindSpeed float64 `json:"wind_speed" yaml:"wind_speed"`
}

// DefaultVariant is used when no initial conditions are known for a night.
var DefaultVariant = VariantSnapshot{IQ: 0.7, CC: 0.5}

// String renders the snapshot in the IQ/CC notation used by observers.
func (v VariantSnapshot) String() string {
	return fmt.Sprintf("IQ%02.0f CC%02.0f wind %.0f° %.1fm/s", v.IQ*100, v.CC*100, v.WindDir, v.WindSpeed)
}

// Satisfies reports whether conditions v are at least as good as required.
func (v VariantSnapshot) Satisfies(iq, cc float64) bool {
	return v.IQ <= iq && v.CC <= cc
}
