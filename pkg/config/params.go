package config

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pkg/errors"
)

// Background selections for rendered graphs.
const (
	BackgroundBlack = "black"
	BackgroundWhite = "white"
	BackgroundBoth  = "both"
)

// Limits enforced on the operator parameter bundle.
const (
	MinHeight     = 100
	MaxHeight     = 400
	MinInterval   = 60 * time.Second
	ResultsSuffix = "_results.txt"
	SeriesSuffix  = "_series.csv"
)

// ErrInvalidParams is returned when the operator parameters are not usable.
var ErrInvalidParams = errors.New("invalid run parameters")

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// RunConfig contains the persisted operator parameters of the last run.
type RunConfig struct {
	Title           string `yaml:"title"`
	Comment         string `yaml:"comment"`
	Background      string `yaml:"background"`
	Height          int    `yaml:"height"`
	MaxMeasurements int    `yaml:"max_measurements"`
	IntervalDays    int    `yaml:"interval_days"`
	IntervalHours   int    `yaml:"interval_hours"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	Directory       string `yaml:"directory"`
	Filename        string `yaml:"filename"` // Base name, letters digits and underscores
	Overwrite       bool   `yaml:"overwrite"`
}

// Interval returns the measurement interval.
func (r RunConfig) Interval() time.Duration {
	return time.Duration(r.IntervalDays)*24*time.Hour +
		time.Duration(r.IntervalHours)*time.Hour +
		time.Duration(r.IntervalMinutes)*time.Minute
}

// Params is the immutable parameter bundle a run starts from.
type Params struct {
	Title           string
	Comment         string
	Background      string
	Height          int
	MaxMeasurements int
	Interval        time.Duration
	OutputPath      string // Directory joined with the filename base, no suffix
	Cancelled       bool
}

// IntervalSeconds returns the interval in whole seconds.
func (p Params) IntervalSeconds() int64 {
	return int64(p.Interval / time.Second)
}

// ResultsFile returns the path of the results text log.
func (p Params) ResultsFile() string {
	return p.OutputPath + ResultsSuffix
}

// SeriesFile returns the path of the time-series file.
func (p Params) SeriesFile() string {
	return p.OutputPath + SeriesSuffix
}

// Params validates the persisted parameters and builds the run bundle.
func (r RunConfig) Params() (Params, error) {
	switch r.Background {
	case BackgroundBlack, BackgroundWhite, BackgroundBoth:
	default:
		return Params{}, errors.Wrapf(ErrInvalidParams, "background %q", r.Background)
	}
	if r.Height < MinHeight || r.Height > MaxHeight {
		return Params{}, errors.Wrapf(ErrInvalidParams, "height %d not in [%d,%d]", r.Height, MinHeight, MaxHeight)
	}
	if r.MaxMeasurements < 1 {
		return Params{}, errors.Wrapf(ErrInvalidParams, "max measurements %d", r.MaxMeasurements)
	}
	if r.IntervalDays < 0 || r.IntervalHours < 0 || r.IntervalMinutes < 0 {
		return Params{}, errors.Wrap(ErrInvalidParams, "negative interval component")
	}
	interval := r.Interval()
	if interval < MinInterval {
		return Params{}, errors.Wrapf(ErrInvalidParams, "interval %s shorter than %s", interval, MinInterval)
	}
	if !filenamePattern.MatchString(r.Filename) {
		return Params{}, errors.Wrapf(ErrInvalidParams, "filename %q may only contain letters, digits and underscores", r.Filename)
	}

	p := Params{
		Title:           r.Title,
		Comment:         r.Comment,
		Background:      r.Background,
		Height:          r.Height,
		MaxMeasurements: r.MaxMeasurements,
		Interval:        interval,
		OutputPath:      filepath.Join(r.Directory, r.Filename),
	}

	if !r.Overwrite {
		if _, err := os.Stat(p.ResultsFile()); err == nil {
			return Params{}, errors.Wrapf(ErrInvalidParams, "%s exists and overwrite is not allowed", p.ResultsFile())
		}
	}

	return p, nil
}
