package session

import (
	"context"
	"time"

	"github.com/itohio/tempgraph/pkg/frame"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrPopulationMismatch is returned when a read reports a sensor count
	// other than the baseline count.
	ErrPopulationMismatch = errors.New("sensor count differs from baseline")
	// ErrOrderMismatch is returned when a read's device ids differ from the
	// baseline ids.
	ErrOrderMismatch = errors.New("device ids differ from baseline")
	// ErrCycleFailed is returned when every attempt of a cycle failed.
	ErrCycleFailed = errors.New("no valid data this cycle")
)

// Stats counts cycle failures over a run. Counters only grow.
type Stats struct {
	NoData     int
	WrongCount int
	WrongOrder int
}

// Validator re-acquires a frame set each cycle and checks it against the
// baseline.
type Validator struct {
	source            Source
	baseline          Baseline
	attempts          int
	cooldownPerSensor time.Duration
	log               *logrus.Entry

	stats Stats
}

// NewValidator creates a validator for an established baseline.
func NewValidator(source Source, baseline Baseline, attempts int, cooldownPerSensor time.Duration, log *logrus.Entry) *Validator {
	return &Validator{
		source:            source,
		baseline:          baseline,
		attempts:          attempts,
		cooldownPerSensor: cooldownPerSensor,
		log:               log,
	}
}

// Stats returns a snapshot of the counters.
func (v *Validator) Stats() Stats { return v.stats }

// Cooldown returns the pause between attempts, scaled by the sensor count.
func (v *Validator) Cooldown() time.Duration {
	return v.cooldownPerSensor * time.Duration(v.baseline.Count)
}

// Validate returns the frames of one cycle ordered like the baseline ids.
// Transport failures are retried without being counted; count and id
// mismatches are counted per attempt. When every attempt fails NoData grows
// and an error wrapping ErrCycleFailed is returned. Cancellation returns the
// context error and leaves the counters alone.
func (v *Validator) Validate(ctx context.Context) ([]frame.Frame, error) {
	var frames []frame.Frame

	err := Retry(ctx, v.attempts, v.Cooldown(),
		func(attempt int, err error, next time.Duration) {
			v.log.WithError(err).WithField("attempt", attempt).Warnf("cycle attempt failed, retrying in %s", next)
		},
		func(ctx context.Context, attempt int) error {
			acq, err := v.source.Acquire(ctx)
			if err != nil {
				return err
			}

			if acq.Count != v.baseline.Count {
				v.stats.WrongCount++
				return errors.Wrapf(ErrPopulationMismatch, "got %d sensors, want %d", acq.Count, v.baseline.Count)
			}

			ids, err := frame.SortedIDs(acq.Data, acq.Count)
			if err != nil {
				return err
			}
			if !v.baseline.Matches(ids) {
				v.stats.WrongOrder++
				return errors.Wrapf(ErrOrderMismatch, "got ids %v, want %v", ids, v.baseline.IDs)
			}

			decoded, err := frame.Decode(acq.Data, acq.Count)
			if err != nil {
				return err
			}
			frames = v.order(decoded)
			return nil
		})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		v.stats.NoData++
		return nil, errors.Wrapf(ErrCycleFailed, "%d attempts: %v", v.attempts, err)
	}
	return frames, nil
}

// order arranges frames by baseline id, looked up by identity rather than
// by position in the payload.
func (v *Validator) order(frames []frame.Frame) []frame.Frame {
	byID := make(map[int]frame.Frame, len(frames))
	for _, f := range frames {
		byID[f.DeviceID] = f
	}
	ordered := make([]frame.Frame, 0, len(v.baseline.IDs))
	for _, id := range v.baseline.IDs {
		ordered = append(ordered, byID[id])
	}
	return ordered
}
