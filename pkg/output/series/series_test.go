package series

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"testing"

	"github.com/itohio/tempgraph/pkg/output/outputtest"
	"github.com/itohio/tempgraph/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestStore_Rows(t *testing.T) {
	run := outputtest.Run(t.TempDir())
	s := New(run.Params.SeriesFile())
	ctx := context.Background()

	require.NoError(t, s.Begin(ctx, run))
	require.NoError(t, s.Record(ctx, outputtest.Success()))
	require.NoError(t, s.Record(ctx, outputtest.Failure()))
	require.NoError(t, s.End(ctx, outputtest.Summary()))
	assert.Equal(t, 2, s.Rows())

	records := readAll(t, s.Path())
	require.Len(t, records, 3)
	assert.Equal(t, []string{"time", "sensor_2", "sensor_5"}, records[0])

	first := outputtest.Success().Scheduled.Unix()
	assert.Equal(t, []string{strconv.FormatInt(first, 10), "70.7", "26.6"}, records[1])
	assert.Equal(t, []string{strconv.FormatInt(first+60, 10), "", ""}, records[2])
}

func TestStore_ColumnsFollowCatalog(t *testing.T) {
	run := outputtest.Run(t.TempDir())
	s := New(run.Params.SeriesFile())
	ctx := context.Background()
	require.NoError(t, s.Begin(ctx, run))

	m := outputtest.Success()
	m.Readings[0], m.Readings[1] = m.Readings[1], m.Readings[0]
	m.Readings = append(m.Readings, session.Reading{DeviceID: 99, Fahrenheit: 1})
	require.NoError(t, s.Record(ctx, m))
	require.NoError(t, s.End(ctx, outputtest.Summary()))

	records := readAll(t, s.Path())
	require.Len(t, records, 2)
	assert.Equal(t, []string{"70.7", "26.6"}, records[1][1:])
}

func TestStore_WithoutBegin(t *testing.T) {
	s := New(t.TempDir() + "/x_series.csv")
	ctx := context.Background()

	assert.Error(t, s.Record(ctx, outputtest.Success()))
	assert.NoError(t, s.End(ctx, session.Summary{}))
}

func TestHeader(t *testing.T) {
	assert.Equal(t, []string{"time"}, Header(nil))
	assert.Equal(t, []string{"time", "sensor_7"}, Header([]session.Sensor{{DeviceID: 7}}))
}
