package probe

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/frame"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the sensor box UART.
	DefaultBaudRate = 9600
	// drainTimeout bounds a single read while emptying the input buffer.
	drainTimeout = 50 * time.Millisecond
	readChunk    = 256
)

// port is the subset of serial.Port used by Serial.
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// Serial talks to the box over a half-duplex serial line. Every acquisition
// flushes stale input, sends the trigger byte and waits for a whole number
// of frames.
type Serial struct {
	name     string
	baudRate int
	trigger  byte
	poll     time.Duration
	timeout  time.Duration
	log      *logrus.Entry

	mu   sync.Mutex
	conn port
	open func(name string, mode *serial.Mode) (port, error)
}

// NewSerial creates a serial transport. Connect must be called before Acquire.
func NewSerial(cfg config.SerialConfig, log *logrus.Entry) *Serial {
	s := &Serial{
		name:     cfg.Port,
		baudRate: cfg.BaudRate,
		poll:     cfg.PollInterval,
		timeout:  cfg.Timeout,
		log:      log,
		open: func(name string, mode *serial.Mode) (port, error) {
			return serial.Open(name, mode)
		},
	}
	if s.baudRate == 0 {
		s.baudRate = DefaultBaudRate
	}
	if len(cfg.Trigger) > 0 {
		s.trigger = cfg.Trigger[0]
	} else {
		s.trigger = 's'
	}
	if s.poll <= 0 {
		s.poll = time.Second
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	return s
}

// Name returns the port name.
func (s *Serial) Name() string { return "serial:" + s.name }

// Connect opens the port at 8N1.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return errors.New("already connected")
	}

	p, err := s.open(s.name, &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", s.name)
	}
	s.conn = p
	s.log.WithField("baud", s.baudRate).Infof("opened %s", s.name)
	return nil
}

// Close closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return errors.Wrap(err, "failed to close serial port")
}

// Acquire triggers one transmission and collects it. The input buffer is
// inspected every poll interval; the read succeeds as soon as it holds a
// positive multiple of the frame width.
func (s *Serial) Acquire(ctx context.Context) (Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return Acquisition{}, ErrNotConnected
	}

	if err := s.conn.ResetInputBuffer(); err != nil {
		return Acquisition{}, errors.Wrap(err, "failed to flush input")
	}
	if _, err := s.conn.Write([]byte{s.trigger}); err != nil {
		return Acquisition{}, errors.Wrap(err, "failed to send trigger")
	}

	var data []byte
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return Acquisition{}, ctx.Err()
		case <-deadline.C:
			s.log.WithField("bytes", len(data)).Warn("no complete frame set")
			return Acquisition{}, errors.Wrapf(ErrTimeout, "%s after %s", s.name, s.timeout)
		case <-ticker.C:
		}

		var err error
		data, err = s.drain(data)
		if err != nil {
			return Acquisition{}, err
		}
		if len(data) > 0 && len(data)%frame.Width == 0 {
			return Acquisition{Count: len(data) / frame.Width, Data: data}, nil
		}
	}
}

// drain appends everything currently buffered by the port to data.
func (s *Serial) drain(data []byte) ([]byte, error) {
	if err := s.conn.SetReadTimeout(drainTimeout); err != nil {
		return data, errors.Wrap(err, "failed to set read timeout")
	}

	buf := make([]byte, readChunk)
	for {
		n, err := s.conn.Read(buf)
		data = append(data, buf[:n]...)
		if err != nil && err != io.EOF {
			return data, errors.Wrap(err, "serial read failed")
		}
		if n == 0 {
			return data, nil
		}
	}
}
