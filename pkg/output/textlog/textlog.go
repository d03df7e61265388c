// Package textlog writes the human readable results file of a run.
package textlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/itohio/tempgraph/pkg/session"
	"github.com/pkg/errors"
)

// StampLayout is the local timestamp written above each measurement.
const StampLayout = "Monday, January 02, 03:04:05 PM:"

// Log appends to a results file. The file is opened for every write so a
// crash never leaves it half buffered.
type Log struct {
	path string

	mu    sync.Mutex
	begun bool
}

var _ session.Recorder = (*Log)(nil)

// New creates a results log at path. Nothing is written before Begin.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the results file path.
func (l *Log) Path() string { return l.path }

// Begin truncates the file and writes the header.
func (l *Log) Begin(_ context.Context, run session.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Create(l.path)
	if err != nil {
		return errors.Wrap(err, "failed to create results file")
	}
	defer f.Close()

	l.begun = true

	var sb strings.Builder
	fmt.Fprintf(&sb, "Graph Title: %s \n\n", run.Params.Title)
	for _, s := range run.Sensors {
		fmt.Fprintf(&sb, "Measuring: %s, Sensor number: %d, Resolution: %d bits\n", s.Description, s.DeviceID, s.Resolution)
	}
	if run.Params.Comment != "" {
		fmt.Fprintf(&sb, "\nGraph Comments: %s \n", run.Params.Comment)
	}
	sb.WriteString("\n\n")

	_, err = io.WriteString(f, sb.String())
	return errors.Wrap(err, "failed to write results header")
}

// Record appends one measurement block.
func (l *Log) Record(_ context.Context, m session.Measurement) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Measurement: %d. %d to go\n", m.Seq, m.Remaining)
	sb.WriteString(m.Taken.Local().Format(StampLayout))
	sb.WriteString("\n")
	if m.Failed() {
		sb.WriteString(" Failed to retrieve data\n\n")
	} else {
		for _, r := range m.Readings {
			fmt.Fprintf(&sb, " The %s sensor temperature is %3.1f degF\n", r.Description, r.Fahrenheit)
		}
		sb.WriteString("\n")
	}
	return l.append(sb.String())
}

// End appends the run summary. Runs that never began leave no file behind.
func (l *Log) End(_ context.Context, s session.Summary) error {
	l.mu.Lock()
	begun := l.begun
	l.mu.Unlock()
	if !begun {
		return nil
	}

	days, hours, minutes := Breakdown(s.RunTime())

	var sb strings.Builder
	fmt.Fprintf(&sb, "Instances of No Data Received: %d\n", s.Stats.NoData)
	fmt.Fprintf(&sb, "Instances of Wrong Number of Sensors: %d\n", s.Stats.WrongCount)
	fmt.Fprintf(&sb, "Instances of Wrong Sensor Order: %d\n\n", s.Stats.WrongOrder)
	sb.WriteString("To look at the time series you need:\n")
	fmt.Fprintf(&sb, "  Start time: %d\n", s.Start.Unix())
	fmt.Fprintf(&sb, "  Last measurement: %d\n\n", s.End.Unix())
	fmt.Fprintf(&sb, "Total Run Time: %2d days, %2d hours, %2d minutes\n", days, hours, minutes)
	fmt.Fprintf(&sb, "Total Number of Measurements Per Device: %d\n", s.TotalMeasurements)
	if s.Reason != session.ExitCompleted {
		fmt.Fprintf(&sb, "Run ended: %s\n", s.Reason)
	}
	return l.append(sb.String())
}

func (l *Log) append(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.begun {
		return errors.New("results file not started")
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to open results file")
	}
	if _, err := io.WriteString(f, text); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write results file")
	}
	return errors.Wrap(f.Close(), "failed to close results file")
}

// Breakdown splits d into whole days, hours and minutes.
func Breakdown(d time.Duration) (days, hours, minutes int64) {
	secs := int64(d / time.Second)
	days = secs / 86400
	hours = secs % 86400 / 3600
	minutes = secs % 3600 / 60
	return days, hours, minutes
}
