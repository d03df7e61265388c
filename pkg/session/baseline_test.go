package session

import (
	"context"
	"testing"

	"github.com/itohio/tempgraph/pkg/frame"
	"github.com/itohio/tempgraph/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshake_TwoAgreeingReads(t *testing.T) {
	src := (&scriptedSource{}).add(box(9, 2, 5), box(5, 9, 2))
	hs := NewHandshake(src, 3, 0, logging.Discard())

	baseline, catalog, err := hs.Establish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Baseline{Count: 3, IDs: []int{2, 5, 9}}, baseline)
	require.Len(t, catalog, 3)
	assert.Equal(t, []int{2, 5, 9}, []int{catalog[0].DeviceID, catalog[1].DeviceID, catalog[2].DeviceID})
	assert.Equal(t, "Sensor", catalog[0].Description)
	assert.Equal(t, 12, catalog[0].Resolution)
	assert.Equal(t, 2, src.calls)

	state, attempt := hs.State()
	assert.Equal(t, HandshakeEstablished, state)
	assert.Equal(t, 1, attempt)
}

func TestHandshake_FailsAfterThreeEmptyAttempts(t *testing.T) {
	src := &scriptedSource{}
	hs := NewHandshake(src, 3, 0, logging.Discard())

	_, _, err := hs.Establish(context.Background())
	assert.ErrorIs(t, err, ErrBaselineUnestablished)
	// A failed first read skips the second one.
	assert.Equal(t, 3, src.calls)

	state, attempt := hs.State()
	assert.Equal(t, HandshakeFailed, state)
	assert.Equal(t, 3, attempt)
}

func TestHandshake_RetriesFromScratch(t *testing.T) {
	tests := []struct {
		name      string
		responses []response
		wantCalls int
	}{
		{
			name:      "ids differ",
			responses: []response{box(2, 5, 9), box(2, 5, 7), box(2, 5, 9), box(9, 5, 2)},
			wantCalls: 4,
		},
		{
			name:      "count differs",
			responses: []response{box(2, 5, 9), box(2, 5), box(2, 5, 9), box(2, 5, 9)},
			wantCalls: 4,
		},
		{
			name:      "second read times out",
			responses: []response{box(2, 5, 9), timeout(), box(2, 5, 9), box(2, 5, 9)},
			wantCalls: 4,
		},
		{
			name:      "first read empty",
			responses: []response{timeout(), timeout(), box(2, 5, 9), box(2, 5, 9)},
			wantCalls: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := (&scriptedSource{}).add(tt.responses...)
			hs := NewHandshake(src, 3, 0, logging.Discard())

			baseline, _, err := hs.Establish(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []int{2, 5, 9}, baseline.IDs)
			assert.Equal(t, tt.wantCalls, src.calls)
		})
	}
}

func TestHandshake_SensorLimit(t *testing.T) {
	ids := make([]int, frame.MaxSensors+1)
	for i := range ids {
		ids[i] = i + 1
	}
	src := (&scriptedSource{}).add(box(ids...), box(ids...))
	hs := NewHandshake(src, 3, 0, logging.Discard())

	_, _, err := hs.Establish(context.Background())
	assert.ErrorIs(t, err, ErrSensorLimitExceeded)
	assert.NotErrorIs(t, err, ErrBaselineUnestablished)
	assert.Equal(t, 2, src.calls)
}

func TestHandshake_OversizedReadIsRetried(t *testing.T) {
	ids := make([]int, frame.MaxSensors+1)
	for i := range ids {
		ids[i] = i + 1
	}
	src := (&scriptedSource{}).add(box(ids...), box(1, 2), box(1, 2), box(2, 1))
	hs := NewHandshake(src, 3, 0, logging.Discard())

	baseline, _, err := hs.Establish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Baseline{Count: 2, IDs: []int{1, 2}}, baseline)
	assert.Equal(t, 4, src.calls)
}

func TestHandshake_SingleAttempt(t *testing.T) {
	src := &scriptedSource{}
	for i := 0; i < 20; i++ {
		src.add(timeout())
	}
	src.add(box(1, 2), box(1, 2))
	hs := NewHandshake(src, 1, 0, logging.Discard())

	_, _, err := hs.Establish(context.Background())
	assert.ErrorIs(t, err, ErrBaselineUnestablished)
	assert.Equal(t, 1, src.calls)

	state, attempt := hs.State()
	assert.Equal(t, HandshakeFailed, state)
	assert.Equal(t, 1, attempt)
}

func TestHandshake_MaxSensorsAccepted(t *testing.T) {
	ids := make([]int, frame.MaxSensors)
	for i := range ids {
		ids[i] = 40 - i
	}
	src := (&scriptedSource{}).add(box(ids...), box(ids...))
	hs := NewHandshake(src, 3, 0, logging.Discard())

	baseline, catalog, err := hs.Establish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, frame.MaxSensors, baseline.Count)
	assert.Equal(t, 29, catalog[0].DeviceID)
}

func TestHandshake_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{onAcquire: func(int) { cancel() }}
	hs := NewHandshake(src, 3, 0, logging.Discard())

	_, _, err := hs.Establish(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.calls)
}

func TestBaseline_Matches(t *testing.T) {
	b := Baseline{Count: 3, IDs: []int{2, 5, 9}}

	assert.True(t, b.Matches([]int{2, 5, 9}))
	assert.False(t, b.Matches([]int{2, 5}))
	assert.False(t, b.Matches([]int{2, 5, 8}))
	assert.False(t, b.Matches(nil))
}
