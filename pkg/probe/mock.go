package probe

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/frame"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Glitch is a simulated transport fault.
type Glitch int

const (
	GlitchNone Glitch = iota
	GlitchDropSensor
	GlitchSwapID
	GlitchTimeout
)

func (g Glitch) String() string {
	switch g {
	case GlitchDropSensor:
		return "drop-sensor"
	case GlitchSwapID:
		return "swap-id"
	case GlitchTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Mock simulates a sensor box for testing and development.
type Mock struct {
	cfg config.MockConfig
	log *logrus.Entry

	mu        sync.Mutex
	rng       *rand.Rand
	temps     []float64
	connected bool
	acquired  int
	forced    []Glitch
}

// NewMock creates a simulated box from cfg.
func NewMock(cfg config.MockConfig, log *logrus.Entry) *Mock {
	if len(cfg.Sensors) > frame.MaxSensors+1 {
		cfg.Sensors = cfg.Sensors[:frame.MaxSensors+1]
	}
	return &Mock{
		cfg: cfg,
		log: log,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Name identifies the mock.
func (m *Mock) Name() string { return "mock" }

// Connect resets the simulation.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return errors.New("already connected")
	}

	m.temps = make([]float64, len(m.cfg.Sensors))
	for i, s := range m.cfg.Sensors {
		m.temps[i] = s.Celsius
	}
	m.connected = true
	m.acquired = 0
	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// Inject queues glitches that take precedence over random ones, one per
// acquisition.
func (m *Mock) Inject(g ...Glitch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = append(m.forced, g...)
}

// Acquired returns the number of Acquire calls served.
func (m *Mock) Acquired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}

// Acquire returns one simulated frame set after the configured latency.
func (m *Mock) Acquire(ctx context.Context) (Acquisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return Acquisition{}, ErrNotConnected
	}
	m.acquired++

	if m.cfg.Latency > 0 {
		t := time.NewTimer(m.cfg.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return Acquisition{}, ctx.Err()
		case <-t.C:
		}
	}

	sensors := m.step()
	if m.cfg.Shuffle {
		m.rng.Shuffle(len(sensors), func(i, j int) { sensors[i], sensors[j] = sensors[j], sensors[i] })
	}

	g := m.nextGlitch()
	switch g {
	case GlitchTimeout:
		m.log.Debug("simulated timeout")
		return Acquisition{}, errors.Wrap(ErrTimeout, "simulated")
	case GlitchDropSensor:
		if len(sensors) > 0 {
			sensors = sensors[:len(sensors)-1]
		}
	case GlitchSwapID:
		if len(sensors) > 0 {
			sensors[0].DeviceID = unusedID(sensors)
		}
	}
	if g != GlitchNone {
		m.log.WithField("glitch", g).Debug("simulated fault")
	}

	if len(sensors) == 0 {
		return Acquisition{}, errors.Wrap(ErrTimeout, "no sensors attached")
	}
	return Acquisition{Count: len(sensors), Data: frame.Encode(sensors)}, nil
}

// step advances every sensor's random walk and returns noisy readings.
func (m *Mock) step() []frame.Sensor {
	sensors := make([]frame.Sensor, len(m.cfg.Sensors))
	for i, s := range m.cfg.Sensors {
		m.temps[i] += (m.rng.Float64()*2 - 1) * m.cfg.Drift
		sensors[i] = frame.Sensor{
			DeviceID:    s.ID,
			Description: s.Description,
			Resolution:  s.Resolution,
			Celsius:     m.temps[i] + m.rng.NormFloat64()*m.cfg.NoiseLevel,
			AlarmHigh:   70,
			AlarmLow:    -10,
		}
	}
	return sensors
}

func (m *Mock) nextGlitch() Glitch {
	if len(m.forced) > 0 {
		g := m.forced[0]
		m.forced = m.forced[1:]
		return g
	}
	if m.cfg.GlitchRate <= 0 || m.rng.Float64() >= m.cfg.GlitchRate {
		return GlitchNone
	}
	return Glitch(1 + m.rng.Intn(3))
}

func unusedID(sensors []frame.Sensor) int {
	used := make(map[int]bool, len(sensors))
	for _, s := range sensors {
		used[s.DeviceID] = true
	}
	for id := 255; id > 0; id-- {
		if !used[id] {
			return id
		}
	}
	return 0
}
