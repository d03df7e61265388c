package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, TransportSerial, cfg.Transport)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, "s", cfg.Serial.Trigger)
	assert.Equal(t, time.Second, cfg.Serial.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Serial.Timeout)
	assert.Equal(t, ":50007", cfg.Socket.Listen)
	assert.Equal(t, 3, cfg.Acquisition.Attempts)
	assert.Equal(t, 10*time.Second, cfg.Acquisition.HandshakeCooldown)
	assert.Equal(t, 1200*time.Millisecond, cfg.Acquisition.CycleCooldownPerSensor)
	assert.Equal(t, 400, cfg.Run.Height)
	assert.Equal(t, 1, cfg.Run.MaxMeasurements)
	assert.Equal(t, time.Minute, cfg.Run.Interval())
	assert.Len(t, cfg.Mock.Sensors, 3)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
transport: socket

serial:
  port: "/dev/ttyUSB0"
  baud_rate: 19200

socket:
  listen: ":6000"
  timeout: 5s
  idle_timeout: 250ms

acquisition:
  attempts: 5
  handshake_cooldown: 2s

run:
  title: "Greenhouse"
  background: white
  height: 200
  max_measurements: 48
  interval_hours: 1
  interval_minutes: 30
  filename: greenhouse

outputs:
  redis:
    enabled: true
    addr: "redis:6379"

mock:
  sensors:
    - id: 7
      description: "Bench"
      resolution: 11
      celsius: 19.5
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, TransportSocket, cfg.Transport)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 19200, cfg.Serial.BaudRate)
	assert.Equal(t, ":6000", cfg.Socket.Listen)
	assert.Equal(t, 5*time.Second, cfg.Socket.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Socket.IdleTimeout)
	assert.Equal(t, 5, cfg.Acquisition.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Acquisition.HandshakeCooldown)
	assert.Equal(t, "Greenhouse", cfg.Run.Title)
	assert.Equal(t, BackgroundWhite, cfg.Run.Background)
	assert.Equal(t, 200, cfg.Run.Height)
	assert.Equal(t, 48, cfg.Run.MaxMeasurements)
	assert.Equal(t, 90*time.Minute, cfg.Run.Interval())
	assert.True(t, cfg.Outputs.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Outputs.Redis.Addr)
	require.Len(t, cfg.Mock.Sensors, 1)
	assert.Equal(t, 7, cfg.Mock.Sensors[0].ID)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("serial: [unclosed")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	_, err = Load(tmpfile.Name())
	assert.Error(t, err)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "COM4"
  trigger: "long"
acquisition:
  wait_resolution: 5s
`
	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "COM4", cfg.Serial.Port)
	assert.Equal(t, "s", cfg.Serial.Trigger)
	assert.Equal(t, 500*time.Millisecond, cfg.Acquisition.WaitResolution)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Run.Title = "Cellar"
	cfg.Run.IntervalMinutes = 15
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Cellar", loaded.Run.Title)
	assert.Equal(t, 15*time.Minute, loaded.Run.Interval())
	assert.Equal(t, cfg.Serial, loaded.Serial)
	assert.Equal(t, cfg.Mock.Sensors, loaded.Mock.Sensors)
}

func validRun(dir string) RunConfig {
	return RunConfig{
		Title:           "Lab",
		Background:      BackgroundBoth,
		Height:          300,
		MaxMeasurements: 10,
		IntervalMinutes: 5,
		Directory:       dir,
		Filename:        "lab_run_1",
	}
}

func TestRunConfig_Params(t *testing.T) {
	dir := t.TempDir()

	p, err := validRun(dir).Params()
	require.NoError(t, err)
	assert.Equal(t, "Lab", p.Title)
	assert.Equal(t, 5*time.Minute, p.Interval)
	assert.Equal(t, int64(300), p.IntervalSeconds())
	assert.Equal(t, filepath.Join(dir, "lab_run_1"), p.OutputPath)
	assert.Equal(t, filepath.Join(dir, "lab_run_1_results.txt"), p.ResultsFile())
	assert.Equal(t, filepath.Join(dir, "lab_run_1_series.csv"), p.SeriesFile())
	assert.False(t, p.Cancelled)
}

func TestRunConfig_ParamsInvalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		modify func(r *RunConfig)
	}{
		{"background", func(r *RunConfig) { r.Background = "red" }},
		{"height too small", func(r *RunConfig) { r.Height = 99 }},
		{"height too large", func(r *RunConfig) { r.Height = 401 }},
		{"no measurements", func(r *RunConfig) { r.MaxMeasurements = 0 }},
		{"interval too short", func(r *RunConfig) { r.IntervalMinutes = 0 }},
		{"negative interval", func(r *RunConfig) { r.IntervalHours = -1 }},
		{"empty filename", func(r *RunConfig) { r.Filename = "" }},
		{"filename with dot", func(r *RunConfig) { r.Filename = "run.txt" }},
		{"filename with slash", func(r *RunConfig) { r.Filename = "../run" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRun(dir)
			tt.modify(&r)
			_, err := r.Params()
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestRunConfig_ParamsOverwrite(t *testing.T) {
	dir := t.TempDir()
	r := validRun(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lab_run_1_results.txt"), []byte("old"), 0644))

	_, err := r.Params()
	assert.ErrorIs(t, err, ErrInvalidParams)

	r.Overwrite = true
	_, err = r.Params()
	assert.NoError(t, err)
}
