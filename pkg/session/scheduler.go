package session

import (
	"context"
	"time"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/frame"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options controls acquisition timing.
type Options struct {
	Attempts               int
	HandshakeCooldown      time.Duration
	CycleCooldownPerSensor time.Duration
	WaitResolution         time.Duration // Longest single sleep while waiting for a due time
	Clock                  Clock
}

// OptionsFrom converts the acquisition section of the configuration.
func OptionsFrom(cfg config.AcquisitionConfig) Options {
	return Options{
		Attempts:               cfg.Attempts,
		HandshakeCooldown:      cfg.HandshakeCooldown,
		CycleCooldownPerSensor: cfg.CycleCooldownPerSensor,
		WaitResolution:         cfg.WaitResolution,
		Clock:                  SystemClock{},
	}
}

// Schedule is the scheduler's mutable state.
type Schedule struct {
	Start     time.Time
	Next      time.Time
	Remaining int
	Interval  time.Duration
}

// Scheduler owns a run: it establishes the baseline, then paces one
// validated acquisition per interval until the budget is spent or ctx ends.
type Scheduler struct {
	params   config.Params
	source   Source
	recorder Recorder
	opts     Options
	log      *logrus.Entry

	schedule  Schedule
	validator *Validator
}

// NewScheduler creates a scheduler for one run.
func NewScheduler(params config.Params, source Source, recorder Recorder, opts Options, log *logrus.Entry) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.WaitResolution <= 0 || opts.WaitResolution > 500*time.Millisecond {
		opts.WaitResolution = 500 * time.Millisecond
	}
	return &Scheduler{
		params:   params,
		source:   source,
		recorder: recorder,
		opts:     opts,
		log:      log,
	}
}

// Schedule returns a copy of the schedule state.
func (s *Scheduler) Schedule() Schedule { return s.schedule }

// Stats returns the cycle counters so far.
func (s *Scheduler) Stats() Stats {
	if s.validator == nil {
		return Stats{}
	}
	return s.validator.Stats()
}

// AlignStart returns the latest multiple of interval, counted from the Unix
// epoch, that is not after now.
func AlignStart(now time.Time, interval time.Duration) time.Time {
	n := now.UnixNano()
	iv := int64(interval)
	start := n - n%iv
	if n < 0 && n%iv != 0 {
		start -= iv
	}
	return time.Unix(0, start).In(now.Location())
}

// Run executes the run. The recorder's End is called exactly once whatever
// the outcome. A non-nil error means the baseline could not be established;
// cancellation is reported through Summary.Reason.
func (s *Scheduler) Run(ctx context.Context) (summary Summary, err error) {
	clock := s.opts.Clock
	interval := s.params.Interval

	summary = Summary{Interval: interval}
	defer func() {
		summary.Stats = s.Stats()
		if endErr := s.recorder.End(context.WithoutCancel(ctx), summary); endErr != nil {
			s.log.WithError(endErr).Error("failed to report summary")
		}
		s.log.WithFields(logrus.Fields{
			"reason":      summary.Reason,
			"no_data":     summary.Stats.NoData,
			"wrong_count": summary.Stats.WrongCount,
			"wrong_order": summary.Stats.WrongOrder,
			"total":       summary.TotalMeasurements,
		}).Info("run finished")
	}()

	if s.params.Cancelled {
		now := clock.Now()
		summary.Reason = ExitParamsCancelled
		summary.Start, summary.End = now, now
		return summary, nil
	}
	if interval <= 0 {
		summary.Reason = ExitBaselineFailed
		return summary, errors.New("interval must be positive")
	}

	hs := NewHandshake(s.source, s.opts.Attempts, s.opts.HandshakeCooldown, s.log.WithField("phase", "handshake"))
	baseline, catalog, err := hs.Establish(ctx)
	if err != nil {
		now := clock.Now()
		summary.Start, summary.End = now, now
		switch {
		case ctx.Err() != nil:
			summary.Reason = ExitCancelled
			return summary, nil
		case errors.Is(err, ErrSensorLimitExceeded):
			summary.Reason = ExitSensorLimit
		default:
			summary.Reason = ExitBaselineFailed
		}
		return summary, err
	}

	s.validator = NewValidator(s.source, baseline, s.opts.Attempts, s.opts.CycleCooldownPerSensor, s.log.WithField("phase", "cycle"))

	start := AlignStart(clock.Now(), interval)
	s.schedule = Schedule{
		Start:     start,
		Next:      start.Add(interval),
		Remaining: s.params.MaxMeasurements,
		Interval:  interval,
	}
	summary.Start = start

	if err := s.recorder.Begin(ctx, Run{
		Params:   s.params,
		Sensors:  catalog,
		Start:    start,
		FirstDue: s.schedule.Next,
	}); err != nil {
		s.log.WithError(err).Error("failed to begin recording")
	}

	summary.Reason = ExitCompleted
	seq := 0
	for s.schedule.Remaining > 0 {
		if err := s.waitUntil(ctx, s.schedule.Next); err != nil {
			summary.Reason = ExitCancelled
			break
		}

		frames, err := s.validator.Validate(ctx)
		if err != nil && ctx.Err() != nil {
			summary.Reason = ExitCancelled
			break
		}

		seq++
		s.schedule.Remaining--
		m := Measurement{
			Seq:       seq,
			Remaining: s.schedule.Remaining,
			Scheduled: s.schedule.Next,
			Taken:     clock.Now(),
			Err:       err,
			Stats:     s.validator.Stats(),
		}
		if err == nil {
			m.Readings = readings(s.schedule.Next, frames, catalog)
		}
		s.logMeasurement(m)
		if err := s.recorder.Record(ctx, m); err != nil {
			s.log.WithError(err).Error("failed to record measurement")
		}

		s.schedule.Next = s.schedule.Next.Add(interval)
	}

	summary.Completed = seq
	summary.End = s.schedule.Next.Add(-interval)
	summary.TotalMeasurements = int64(summary.End.Sub(summary.Start) / interval)
	return summary, nil
}

// waitUntil sleeps in short steps until due.
func (s *Scheduler) waitUntil(ctx context.Context, due time.Time) error {
	clock := s.opts.Clock
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		left := due.Sub(clock.Now())
		if left <= 0 {
			return nil
		}
		if left > s.opts.WaitResolution {
			left = s.opts.WaitResolution
		}
		if err := clock.Sleep(ctx, left); err != nil {
			return err
		}
	}
}

func (s *Scheduler) logMeasurement(m Measurement) {
	entry := s.log.WithFields(logrus.Fields{"seq": m.Seq, "remaining": m.Remaining})
	if m.Failed() {
		entry.WithError(m.Err).Warn("failed to retrieve data")
		return
	}
	for _, r := range m.Readings {
		entry.WithFields(logrus.Fields{
			"device":     r.DeviceID,
			"fahrenheit": r.Fahrenheit,
		}).Debugf("measuring %s", r.Description)
	}
}

// readings labels each frame from the catalog captured at baseline time.
func readings(due time.Time, frames []frame.Frame, catalog []Sensor) []Reading {
	labels := make(map[int]Sensor, len(catalog))
	for _, c := range catalog {
		labels[c.DeviceID] = c
	}

	out := make([]Reading, len(frames))
	for i, f := range frames {
		label := labels[f.DeviceID]
		out[i] = Reading{
			Time:        due,
			DeviceID:    f.DeviceID,
			Description: label.Description,
			Resolution:  label.Resolution,
			Celsius:     f.Celsius(),
			Fahrenheit:  f.Fahrenheit(),
		}
	}
	return out
}
