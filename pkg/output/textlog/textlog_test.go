package textlog

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/itohio/tempgraph/pkg/output/outputtest"
	"github.com/itohio/tempgraph/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_FullRun(t *testing.T) {
	dir := t.TempDir()
	run := outputtest.Run(dir)
	l := New(run.Params.ResultsFile())
	ctx := context.Background()

	require.NoError(t, l.Begin(ctx, run))
	require.NoError(t, l.Record(ctx, outputtest.Success()))
	require.NoError(t, l.Record(ctx, outputtest.Failure()))
	require.NoError(t, l.End(ctx, outputtest.Summary()))

	data, err := os.ReadFile(filepath.Join(dir, "greenhouse_results.txt"))
	require.NoError(t, err)

	want := "Graph Title: Greenhouse \n\n" +
		"Measuring: Bench\\:A, Sensor number: 2, Resolution: 12 bits\n" +
		"Measuring: Roof, Sensor number: 5, Resolution: 9 bits\n" +
		"\nGraph Comments: north bench \n" +
		"\n\n" +
		"Measurement: 1. 1 to go\n" +
		"Monday, March 04, 01:01:02 PM:\n" +
		" The Bench\\:A sensor temperature is 70.7 degF\n" +
		" The Roof sensor temperature is 26.6 degF\n" +
		"\n" +
		"Measurement: 2. 0 to go\n" +
		"Monday, March 04, 01:02:12 PM:\n" +
		" Failed to retrieve data\n\n" +
		"Instances of No Data Received: 1\n" +
		"Instances of Wrong Number of Sensors: 2\n" +
		"Instances of Wrong Sensor Order: 0\n\n" +
		"To look at the time series you need:\n" +
		"  Start time: " + strconv.FormatInt(outputtest.Start.Unix(), 10) + "\n" +
		"  Last measurement: " + strconv.FormatInt(outputtest.Start.Add(2*time.Minute).Unix(), 10) + "\n\n" +
		"Total Run Time:  0 days,  0 hours,  2 minutes\n" +
		"Total Number of Measurements Per Device: 2\n"
	assert.Equal(t, want, string(data))
}

func TestLog_NoComment(t *testing.T) {
	dir := t.TempDir()
	run := outputtest.Run(dir)
	run.Params.Comment = ""
	l := New(run.Params.ResultsFile())

	require.NoError(t, l.Begin(context.Background(), run))

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Graph Comments")
}

func TestLog_EndReason(t *testing.T) {
	dir := t.TempDir()
	run := outputtest.Run(dir)
	l := New(run.Params.ResultsFile())
	ctx := context.Background()

	require.NoError(t, l.Begin(ctx, run))
	s := outputtest.Summary()
	s.Reason = session.ExitCancelled
	require.NoError(t, l.End(ctx, s))

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Run ended: cancelled\n")
}

func TestLog_WithoutBegin(t *testing.T) {
	dir := t.TempDir()
	l := New(filepath.Join(dir, "none_results.txt"))
	ctx := context.Background()

	assert.NoError(t, l.End(ctx, session.Summary{Reason: session.ExitBaselineFailed}))
	assert.Error(t, l.Record(ctx, outputtest.Success()))

	_, err := os.Stat(l.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestLog_BeginTruncates(t *testing.T) {
	dir := t.TempDir()
	run := outputtest.Run(dir)
	require.NoError(t, os.WriteFile(run.Params.ResultsFile(), []byte("stale contents\n"), 0644))

	l := New(run.Params.ResultsFile())
	require.NoError(t, l.Begin(context.Background(), run))

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
}

func TestBreakdown(t *testing.T) {
	tests := []struct {
		name    string
		d       time.Duration
		days    int64
		hours   int64
		minutes int64
	}{
		{"zero", 0, 0, 0, 0},
		{"minutes", 59 * time.Minute, 0, 0, 59},
		{"hours", 3*time.Hour + 5*time.Minute + 30*time.Second, 0, 3, 5},
		{"days", 50*time.Hour + time.Minute, 2, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, h, m := Breakdown(tt.d)
			assert.Equal(t, tt.days, d)
			assert.Equal(t, tt.hours, h)
			assert.Equal(t, tt.minutes, m)
		})
	}
}
