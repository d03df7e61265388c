// Package outputtest provides a canned run for output tests.
package outputtest

import (
	"time"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/frame"
	"github.com/itohio/tempgraph/pkg/session"
	"github.com/pkg/errors"
)

// Start is the aligned start of the canned run.
var Start = time.Date(2024, time.March, 4, 13, 0, 0, 0, time.Local)

// Run returns a two sensor run with a one minute interval writing under dir.
func Run(dir string) session.Run {
	return session.Run{
		Params: config.Params{
			Title:           "Greenhouse",
			Comment:         "north bench",
			Background:      config.BackgroundBoth,
			Height:          300,
			MaxMeasurements: 2,
			Interval:        time.Minute,
			OutputPath:      dir + "/greenhouse",
		},
		Sensors: []session.Sensor{
			{DeviceID: 2, Description: `Bench\:A`, Resolution: 12},
			{DeviceID: 5, Description: "Roof", Resolution: 9},
		},
		Start:    Start,
		FirstDue: Start.Add(time.Minute),
	}
}

// Success is the first, successful measurement.
func Success() session.Measurement {
	due := Start.Add(time.Minute)
	return session.Measurement{
		Seq:       1,
		Remaining: 1,
		Scheduled: due,
		Taken:     due.Add(2 * time.Second),
		Readings: []session.Reading{
			{Time: due, DeviceID: 2, Description: `Bench\:A`, Resolution: 12, Celsius: 21.5, Fahrenheit: frame.Fahrenheit(21.5)},
			{Time: due, DeviceID: 5, Description: "Roof", Resolution: 9, Celsius: -3, Fahrenheit: frame.Fahrenheit(-3)},
		},
	}
}

// Failure is the second measurement, which got no data.
func Failure() session.Measurement {
	due := Start.Add(2 * time.Minute)
	return session.Measurement{
		Seq:       2,
		Remaining: 0,
		Scheduled: due,
		Taken:     due.Add(12 * time.Second),
		Err:       errors.Wrap(session.ErrCycleFailed, "3 attempts"),
		Stats:     session.Stats{NoData: 1, WrongCount: 2},
	}
}

// Summary closes the canned run.
func Summary() session.Summary {
	return session.Summary{
		Reason:            session.ExitCompleted,
		Stats:             session.Stats{NoData: 1, WrongCount: 2},
		Start:             Start,
		End:               Start.Add(2 * time.Minute),
		Interval:          time.Minute,
		TotalMeasurements: 2,
		Completed:         2,
	}
}
