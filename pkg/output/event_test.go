package output

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/itohio/tempgraph/pkg/output/outputtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	events []Event
}

func (c *capture) Publish(_ context.Context, e Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestEventRecorder(t *testing.T) {
	c := &capture{}
	r := NewEventRecorder(c)
	ctx := context.Background()

	require.NoError(t, r.Begin(ctx, outputtest.Run("/tmp")))
	require.NoError(t, r.Record(ctx, outputtest.Success()))
	require.NoError(t, r.Record(ctx, outputtest.Failure()))
	require.NoError(t, r.End(ctx, outputtest.Summary()))
	require.Len(t, c.events, 4)

	begin := c.events[0]
	assert.Equal(t, EventBegin, begin.Type)
	assert.Equal(t, "Greenhouse", begin.Run)
	assert.Len(t, begin.Sensors, 2)
	assert.Equal(t, 60.0, begin.Interval)

	ok := c.events[1]
	assert.Equal(t, EventMeasurement, ok.Type)
	assert.Equal(t, 1, ok.Seq)
	require.Len(t, ok.Readings, 2)
	assert.Equal(t, "Greenhouse", ok.Readings[0].Run)
	assert.Equal(t, 2, ok.Readings[0].DeviceID)
	assert.Equal(t, 70.7, ok.Readings[0].Fahrenheit)
	assert.Empty(t, ok.Error)

	failed := c.events[2]
	assert.Empty(t, failed.Readings)
	assert.Contains(t, failed.Error, "no valid data")
	assert.Equal(t, &Stats{NoData: 1, WrongCount: 2}, failed.Stats)

	end := c.events[3]
	assert.Equal(t, EventEnd, end.Type)
	assert.Equal(t, "completed", end.Reason)
	assert.Equal(t, int64(2), end.Total)
}

func TestEvent_JSON(t *testing.T) {
	e := MeasurementEvent("lab", outputtest.Success())

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "measurement", decoded["type"])
	assert.NotContains(t, decoded, "error")
	assert.NotContains(t, decoded, "start")
	readings := decoded["readings"].([]interface{})
	first := readings[0].(map[string]interface{})
	assert.Equal(t, `Bench\:A`, first["description"])
	assert.Equal(t, 21.5, first["celsius"])
}

func TestRunName(t *testing.T) {
	run := outputtest.Run("/data")
	assert.Equal(t, "Greenhouse", RunName(run))

	run.Params.Title = ""
	assert.Equal(t, "/data/greenhouse", RunName(run))
}
