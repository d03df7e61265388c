// Package output holds the document shapes shared by the outputs that ship
// measurements off the machine.
package output

import (
	"context"
	"time"

	"github.com/itohio/tempgraph/pkg/session"
)

// Event types.
const (
	EventBegin       = "begin"
	EventMeasurement = "measurement"
	EventEnd         = "end"
)

// Reading is the serialized form of one sensor reading.
type Reading struct {
	Run         string    `json:"run" bson:"run"`
	Seq         int       `json:"seq" bson:"seq"`
	Time        time.Time `json:"time" bson:"time"`
	DeviceID    int       `json:"device_id" bson:"device_id"`
	Description string    `json:"description" bson:"description"`
	Resolution  int       `json:"resolution" bson:"resolution"`
	Celsius     float64   `json:"celsius" bson:"celsius"`
	Fahrenheit  float64   `json:"fahrenheit" bson:"fahrenheit"`
}

// Stats mirrors session.Stats.
type Stats struct {
	NoData     int `json:"no_data" bson:"no_data"`
	WrongCount int `json:"wrong_count" bson:"wrong_count"`
	WrongOrder int `json:"wrong_order" bson:"wrong_order"`
}

// Sensor mirrors a catalog entry.
type Sensor struct {
	DeviceID    int    `json:"device_id"`
	Description string `json:"description"`
	Resolution  int    `json:"resolution"`
}

// Event is one message on a live feed or broker.
type Event struct {
	Type      string    `json:"type"`
	Run       string    `json:"run"`
	Stamp     time.Time `json:"stamp"`
	Seq       int       `json:"seq,omitempty"`
	Remaining int       `json:"remaining,omitempty"`
	Readings  []Reading `json:"readings,omitempty"`
	Error     string    `json:"error,omitempty"`
	Stats     *Stats    `json:"stats,omitempty"`
	Sensors   []Sensor  `json:"sensors,omitempty"`
	Interval  float64   `json:"interval_seconds,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Total     int64     `json:"total_measurements,omitempty"`
	Start     time.Time `json:"start,omitzero"`
	End       time.Time `json:"end,omitzero"`
}

// RunName is the identifier attached to every document of a run.
func RunName(run session.Run) string {
	if run.Params.Title != "" {
		return run.Params.Title
	}
	return run.Params.OutputPath
}

// Readings converts a measurement's readings.
func Readings(run string, m session.Measurement) []Reading {
	out := make([]Reading, len(m.Readings))
	for i, r := range m.Readings {
		out[i] = Reading{
			Run:         run,
			Seq:         m.Seq,
			Time:        r.Time,
			DeviceID:    r.DeviceID,
			Description: r.Description,
			Resolution:  r.Resolution,
			Celsius:     r.Celsius,
			Fahrenheit:  r.Fahrenheit,
		}
	}
	return out
}

func stats(s session.Stats) *Stats {
	return &Stats{NoData: s.NoData, WrongCount: s.WrongCount, WrongOrder: s.WrongOrder}
}

// BeginEvent describes the start of a run.
func BeginEvent(run session.Run) Event {
	sensors := make([]Sensor, len(run.Sensors))
	for i, s := range run.Sensors {
		sensors[i] = Sensor{DeviceID: s.DeviceID, Description: s.Description, Resolution: s.Resolution}
	}
	return Event{
		Type:     EventBegin,
		Run:      RunName(run),
		Stamp:    run.FirstDue,
		Sensors:  sensors,
		Interval: run.Params.Interval.Seconds(),
		Start:    run.Start,
	}
}

// MeasurementEvent describes one cycle.
func MeasurementEvent(run string, m session.Measurement) Event {
	e := Event{
		Type:      EventMeasurement,
		Run:       run,
		Stamp:     m.Scheduled,
		Seq:       m.Seq,
		Remaining: m.Remaining,
		Readings:  Readings(run, m),
		Stats:     stats(m.Stats),
	}
	if m.Err != nil {
		e.Error = m.Err.Error()
	}
	return e
}

// EndEvent describes the end of a run.
func EndEvent(run string, s session.Summary) Event {
	return Event{
		Type:     EventEnd,
		Run:      run,
		Stamp:    s.End,
		Stats:    stats(s.Stats),
		Interval: s.Interval.Seconds(),
		Reason:   s.Reason.String(),
		Total:    s.TotalMeasurements,
		Start:    s.Start,
		End:      s.End,
	}
}

// Publisher sends events somewhere. Outputs that only forward events
// are built from one with NewEventRecorder.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// EventRecorder adapts a Publisher to session.Recorder.
type EventRecorder struct {
	pub Publisher
	run string
}

var _ session.Recorder = (*EventRecorder)(nil)

// NewEventRecorder wraps pub.
func NewEventRecorder(pub Publisher) *EventRecorder {
	return &EventRecorder{pub: pub}
}

func (r *EventRecorder) Begin(ctx context.Context, run session.Run) error {
	r.run = RunName(run)
	return r.pub.Publish(ctx, BeginEvent(run))
}

func (r *EventRecorder) Record(ctx context.Context, m session.Measurement) error {
	return r.pub.Publish(ctx, MeasurementEvent(r.run, m))
}

func (r *EventRecorder) End(ctx context.Context, s session.Summary) error {
	return r.pub.Publish(ctx, EndEvent(r.run, s))
}
