package session

import (
	"context"
	"sync"
	"time"

	"github.com/itohio/tempgraph/pkg/frame"
	"github.com/itohio/tempgraph/pkg/probe"
	"github.com/pkg/errors"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type response struct {
	acq probe.Acquisition
	err error
}

// scriptedSource replays responses in order and times out once they run out.
type scriptedSource struct {
	responses []response
	calls     int
	onAcquire func(call int)
}

func (s *scriptedSource) Acquire(ctx context.Context) (probe.Acquisition, error) {
	s.calls++
	if s.onAcquire != nil {
		s.onAcquire(s.calls)
	}
	if err := ctx.Err(); err != nil {
		return probe.Acquisition{}, err
	}
	if len(s.responses) == 0 {
		return probe.Acquisition{}, errors.Wrap(probe.ErrTimeout, "script exhausted")
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r.acq, r.err
}

// cancelOnCall cancels after the given acquisition has completed.
type cancelOnCall struct {
	Source
	call   int
	calls  int
	cancel context.CancelFunc
}

func (c *cancelOnCall) Acquire(ctx context.Context) (probe.Acquisition, error) {
	acq, err := c.Source.Acquire(ctx)
	c.calls++
	if c.calls == c.call {
		c.cancel()
	}
	return acq, err
}

func (s *scriptedSource) add(r ...response) *scriptedSource {
	s.responses = append(s.responses, r...)
	return s
}

// box builds a frame set for ids, in the given order. Temperatures are
// id + 20 °C.
func box(ids ...int) response {
	sensors := make([]frame.Sensor, len(ids))
	for i, id := range ids {
		sensors[i] = frame.Sensor{
			DeviceID:    id,
			Description: "Sensor",
			Resolution:  12,
			Celsius:     float64(id) + 20,
		}
	}
	return response{acq: probe.Acquisition{Count: len(ids), Data: frame.Encode(sensors)}}
}

func timeout() response {
	return response{err: errors.Wrap(probe.ErrTimeout, "test")}
}

// recording captures recorder calls.
type recording struct {
	runs         []Run
	measurements []Measurement
	summaries    []Summary
	onRecord     func(m Measurement)
}

func (r *recording) Begin(_ context.Context, run Run) error {
	r.runs = append(r.runs, run)
	return nil
}

func (r *recording) Record(_ context.Context, m Measurement) error {
	r.measurements = append(r.measurements, m)
	if r.onRecord != nil {
		r.onRecord(m)
	}
	return nil
}

func (r *recording) End(_ context.Context, s Summary) error {
	r.summaries = append(r.summaries, s)
	return nil
}
