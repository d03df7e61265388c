package session

import (
	"context"
	"time"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/sirupsen/logrus"
)

// Sensor is the static metadata captured for one device at baseline time.
type Sensor struct {
	DeviceID    int
	Description string
	Resolution  int
}

// Run describes a run once its baseline is established.
type Run struct {
	Params   config.Params
	Sensors  []Sensor // Catalog, ascending device id
	Start    time.Time
	FirstDue time.Time
}

// Reading is one sensor's temperature for one cycle.
type Reading struct {
	Time        time.Time // Scheduled due time
	DeviceID    int
	Description string
	Resolution  int
	Celsius     float64
	Fahrenheit  float64
}

// Measurement is the outcome of one scheduled cycle.
type Measurement struct {
	Seq       int // 1-based
	Remaining int // Measurements left after this one
	Scheduled time.Time
	Taken     time.Time
	Readings  []Reading // Baseline order; empty on failure
	Err       error
	Stats     Stats
}

// Failed reports whether the cycle produced no readings.
func (m Measurement) Failed() bool { return m.Err != nil }

// ExitReason tells why a run ended.
type ExitReason int

const (
	ExitCompleted ExitReason = iota
	ExitCancelled
	ExitParamsCancelled
	ExitBaselineFailed
	ExitSensorLimit
)

func (r ExitReason) String() string {
	switch r {
	case ExitCompleted:
		return "completed"
	case ExitCancelled:
		return "cancelled"
	case ExitParamsCancelled:
		return "cancelled before start"
	case ExitBaselineFailed:
		return "baseline failed"
	case ExitSensorLimit:
		return "sensor limit exceeded"
	default:
		return "unknown"
	}
}

// Summary is reported exactly once at the end of every run.
type Summary struct {
	Reason            ExitReason
	Stats             Stats
	Start             time.Time
	End               time.Time // Due time of the last scheduled measurement
	Interval          time.Duration
	TotalMeasurements int64 // (End-Start)/Interval
	Completed         int   // Cycles attempted
}

// RunTime returns End minus Start.
func (s Summary) RunTime() time.Duration {
	return s.End.Sub(s.Start)
}

// Recorder receives a run's results. Begin is only called once a baseline
// exists; End is always called.
type Recorder interface {
	Begin(ctx context.Context, run Run) error
	Record(ctx context.Context, m Measurement) error
	End(ctx context.Context, s Summary) error
}

// Multi fans calls out to every recorder. Failures are logged and never
// returned, so one broken output cannot stop acquisition.
type Multi struct {
	recorders []namedRecorder
	log       *logrus.Entry
}

type namedRecorder struct {
	name string
	Recorder
}

var _ Recorder = (*Multi)(nil)

// NewMulti creates an empty fan-out.
func NewMulti(log *logrus.Entry) *Multi {
	return &Multi{log: log}
}

// Add registers a recorder under name.
func (m *Multi) Add(name string, r Recorder) {
	m.recorders = append(m.recorders, namedRecorder{name: name, Recorder: r})
}

// Len returns the number of registered recorders.
func (m *Multi) Len() int { return len(m.recorders) }

func (m *Multi) Begin(ctx context.Context, run Run) error {
	for _, r := range m.recorders {
		if err := r.Begin(ctx, run); err != nil {
			m.log.WithError(err).WithField("output", r.name).Error("begin failed")
		}
	}
	return nil
}

func (m *Multi) Record(ctx context.Context, meas Measurement) error {
	for _, r := range m.recorders {
		if err := r.Record(ctx, meas); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"output": r.name,
				"seq":    meas.Seq,
			}).Error("record failed")
		}
	}
	return nil
}

func (m *Multi) End(ctx context.Context, s Summary) error {
	for _, r := range m.recorders {
		if err := r.End(ctx, s); err != nil {
			m.log.WithError(err).WithField("output", r.name).Error("end failed")
		}
	}
	return nil
}
