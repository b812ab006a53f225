package model

import (
	"fmt"
	"time"
)

// EventKind discriminates the Event variants.
type EventKind string

const (
	EventEveningTwilight EventKind = "EVENING_TWILIGHT"
	EventMorningTwilight EventKind = "MORNING_TWILIGHT"
	EventWeatherChange   EventKind = "WEATHER_CHANGE"
	EventClosureStart    EventKind = "CLOSURE_START"
	EventClosureEnd      EventKind = "CLOSURE_END"
	EventFaultStart      EventKind = "FAULT_START"
	EventFaultEnd        EventKind = "FAULT_END"
	EventToOActivation   EventKind = "TOO_ACTIVATION"
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	return string(k)
}

// IsInterruptionStart reports whether the kind opens a blocked interval.
func (k EventKind) IsInterruptionStart() bool {
	return k == EventFaultStart || k == EventClosureStart
}

// IsInterruptionEnd reports whether the kind closes a blocked interval.
func (k EventKind) IsInterruptionEnd() bool {
	return k == EventFaultEnd || k == EventClosureEnd
}

// Event is something that happens at a site during a night. The set of
// implementations is closed: callers switch on the concrete type or on Kind.
type Event interface {
	Kind() EventKind
	Site() Site
	Time() time.Time
	Description() string
	isEvent()
}

// EventTimeslot converts the event time into a timeslot of the night that
// starts at nightStart.
func EventTimeslot(e Event, nightStart time.Time, slotLength time.Duration) TimeslotIndex {
	return TimeslotFor(e.Time(), nightStart, slotLength)
}

// FormatEvent renders an event for logs and displays.
func FormatEvent(e Event) string {
	if e == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s@%s %s", e.Kind(), e.Time().UTC().Format("2006-01-02 15:04"), e.Description())
}

type eventBase struct {
	site Site
	at   time.Time
	desc string
}

func (b eventBase) Site() Site          { return b.site }
func (b eventBase) Time() time.Time     { return b.at }
func (b eventBase) Description() string { return b.desc }
func (eventBase) isEvent()              {}

// EveningTwilight marks the start of the observing night.
type EveningTwilight struct{ eventBase }

// NewEveningTwilight creates an evening twilight event.
func NewEveningTwilight(site Site, at time.Time, desc string) *EveningTwilight {
	return &EveningTwilight{eventBase{site, at, desc}}
}

func (*EveningTwilight) Kind() EventKind { return EventEveningTwilight }

// MorningTwilight marks the end of the observing night.
type MorningTwilight struct{ eventBase }

// NewMorningTwilight creates a morning twilight event.
func NewMorningTwilight(site Site, at time.Time, desc string) *MorningTwilight {
	return &MorningTwilight{eventBase{site, at, desc}}
}

func (*MorningTwilight) Kind() EventKind { return EventMorningTwilight }

// WeatherChange carries a new set of observing conditions.
type WeatherChange struct {
	eventBase
	Variant VariantSnapshot
}

// NewWeatherChange creates a weather change event.
func NewWeatherChange(site Site, at time.Time, desc string, v VariantSnapshot) *WeatherChange {
	return &WeatherChange{eventBase: eventBase{site, at, desc}, Variant: v}
}

func (*WeatherChange) Kind() EventKind { return EventWeatherChange }

// Interruption is the shared payload of fault and closure events. ID pairs a
// start with its end; it may be empty when the source does not supply one.
type Interruption struct {
	ID     string
	Reason string
}

// ClosureStart opens an unscheduled closure (e.g. weather loss).
type ClosureStart struct {
	eventBase
	Interruption
}

// NewClosureStart creates a closure start event.
func NewClosureStart(site Site, at time.Time, desc string, in Interruption) *ClosureStart {
	return &ClosureStart{eventBase{site, at, desc}, in}
}

func (*ClosureStart) Kind() EventKind { return EventClosureStart }

// ClosureEnd closes an unscheduled closure.
type ClosureEnd struct {
	eventBase
	Interruption
}

// NewClosureEnd creates a closure end event.
func NewClosureEnd(site Site, at time.Time, desc string, in Interruption) *ClosureEnd {
	return &ClosureEnd{eventBase{site, at, desc}, in}
}

func (*ClosureEnd) Kind() EventKind { return EventClosureEnd }

// FaultStart opens an equipment fault.
type FaultStart struct {
	eventBase
	Interruption
}

// NewFaultStart creates a fault start event.
func NewFaultStart(site Site, at time.Time, desc string, in Interruption) *FaultStart {
	return &FaultStart{eventBase{site, at, desc}, in}
}

func (*FaultStart) Kind() EventKind { return EventFaultStart }

// FaultEnd closes an equipment fault.
type FaultEnd struct {
	eventBase
	Interruption
}

// NewFaultEnd creates a fault end event.
func NewFaultEnd(site Site, at time.Time, desc string, in Interruption) *FaultEnd {
	return &FaultEnd{eventBase{site, at, desc}, in}
}

func (*FaultEnd) Kind() EventKind { return EventFaultEnd }

// ToOActivation makes a target-of-opportunity observation schedulable.
type ToOActivation struct {
	eventBase
	ObservationID string
}

// NewToOActivation creates a ToO activation event.
func NewToOActivation(site Site, at time.Time, desc, obsID string) *ToOActivation {
	return &ToOActivation{eventBase: eventBase{site, at, desc}, ObservationID: obsID}
}

func (*ToOActivation) Kind() EventKind { return EventToOActivation }

// InterruptionOf returns the interruption payload of fault and closure
// events.
func InterruptionOf(e Event) (Interruption, bool) {
	switch ev := e.(type) {
	case *FaultStart:
		return ev.Interruption, true
	case *FaultEnd:
		return ev.Interruption, true
	case *ClosureStart:
		return ev.Interruption, true
	case *ClosureEnd:
		return ev.Interruption, true
	}
	return Interruption{}, false
}
