package session

import (
	"context"
	"sort"
	"time"

	"github.com/itohio/tempgraph/pkg/frame"
	"github.com/itohio/tempgraph/pkg/probe"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrBaselineUnestablished is returned when no two agreeing reads were
	// obtained within the allowed attempts.
	ErrBaselineUnestablished = errors.New("baseline could not be established")
	// ErrSensorLimitExceeded is returned when the box reports more sensors
	// than a frame set may carry.
	ErrSensorLimitExceeded = errors.New("sensor limit exceeded")
	// ErrNoSensors is returned for a read that carried no frames.
	ErrNoSensors = errors.New("no sensors reported")
)

// Source delivers raw frame sets.
type Source interface {
	Acquire(ctx context.Context) (probe.Acquisition, error)
}

// Baseline is the trusted sensor population of a run.
type Baseline struct {
	Count int
	IDs   []int // Ascending
}

// Matches reports whether ids (ascending) equal the baseline ids.
func (b Baseline) Matches(ids []int) bool {
	if len(ids) != len(b.IDs) {
		return false
	}
	for i := range ids {
		if ids[i] != b.IDs[i] {
			return false
		}
	}
	return true
}

// HandshakeState is the state of the baseline handshake.
type HandshakeState int

const (
	HandshakeIdle HandshakeState = iota
	HandshakeAttempting
	HandshakeEstablished
	HandshakeFailed
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeAttempting:
		return "attempting"
	case HandshakeEstablished:
		return "established"
	case HandshakeFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Handshake establishes the baseline from two consecutive agreeing reads.
type Handshake struct {
	source   Source
	attempts int
	cooldown time.Duration
	log      *logrus.Entry

	state   HandshakeState
	attempt int
}

// NewHandshake creates a handshake that tries up to attempts times with
// cooldown between tries.
func NewHandshake(source Source, attempts int, cooldown time.Duration, log *logrus.Entry) *Handshake {
	return &Handshake{
		source:   source,
		attempts: attempts,
		cooldown: cooldown,
		log:      log,
	}
}

// State returns the current state and attempt number.
func (h *Handshake) State() (HandshakeState, int) {
	return h.state, h.attempt
}

func (h *Handshake) transition(s HandshakeState, attempt int) {
	h.state, h.attempt = s, attempt
	h.log.WithFields(logrus.Fields{"state": s, "attempt": attempt}).Info("handshake")
}

// Establish runs the handshake. On success it returns the baseline and the
// sensor catalog, ascending by device id, taken from the second read.
func (h *Handshake) Establish(ctx context.Context) (Baseline, []Sensor, error) {
	var (
		baseline Baseline
		catalog  []Sensor
	)

	err := Retry(ctx, h.attempts, h.cooldown,
		func(attempt int, err error, next time.Duration) {
			h.log.WithError(err).WithField("attempt", attempt).Warnf("handshake attempt failed, retrying in %s", next)
		},
		func(ctx context.Context, attempt int) error {
			h.transition(HandshakeAttempting, attempt)

			first, err := h.read(ctx)
			if err != nil {
				return err
			}
			second, err := h.read(ctx)
			if err != nil {
				return err
			}

			if first.Count != second.Count {
				return errors.Wrapf(ErrPopulationMismatch, "reads reported %d and %d sensors", first.Count, second.Count)
			}
			ids1, err := frame.SortedIDs(first.Data, first.Count)
			if err != nil {
				return err
			}
			ids2, err := frame.SortedIDs(second.Data, second.Count)
			if err != nil {
				return err
			}
			if !(Baseline{Count: len(ids1), IDs: ids1}).Matches(ids2) {
				return errors.Wrapf(ErrOrderMismatch, "reads reported ids %v and %v", ids1, ids2)
			}

			if second.Count > frame.MaxSensors {
				return Permanent(errors.Wrapf(ErrSensorLimitExceeded, "%d sensors, at most %d supported", second.Count, frame.MaxSensors))
			}
			frames, err := frame.Decode(second.Data, second.Count)
			if err != nil {
				return err
			}
			baseline = Baseline{Count: second.Count, IDs: ids2}
			catalog = buildCatalog(frames)
			return nil
		})

	if err != nil {
		h.transition(HandshakeFailed, h.attempt)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Baseline{}, nil, ctxErr
		}
		if errors.Is(err, ErrSensorLimitExceeded) {
			return Baseline{}, nil, err
		}
		return Baseline{}, nil, errors.Wrapf(ErrBaselineUnestablished, "after %d attempts: %v", h.attempt, err)
	}

	h.transition(HandshakeEstablished, h.attempt)
	for _, s := range catalog {
		h.log.Infof("name for sensor %d: %s", s.DeviceID, s.Description)
	}
	return baseline, catalog, nil
}

// read performs one acquisition and rejects empty frame sets. The sensor
// limit is checked once both reads agree.
func (h *Handshake) read(ctx context.Context) (probe.Acquisition, error) {
	acq, err := h.source.Acquire(ctx)
	if err != nil {
		return probe.Acquisition{}, err
	}
	if acq.Count <= 0 {
		return probe.Acquisition{}, ErrNoSensors
	}
	return acq, nil
}

func buildCatalog(frames []frame.Frame) []Sensor {
	catalog := make([]Sensor, len(frames))
	for i, f := range frames {
		catalog[i] = Sensor{
			DeviceID:    f.DeviceID,
			Description: f.Description,
			Resolution:  f.Resolution,
		}
	}
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].DeviceID < catalog[j].DeviceID })
	return catalog
}
