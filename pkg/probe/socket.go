package probe

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/frame"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Socket waits for the box to connect and deliver one delimited text
// payload per acquisition.
type Socket struct {
	addr       string
	timeout    time.Duration
	idle       time.Duration
	maxPayload int
	log        *logrus.Entry

	mu       sync.Mutex
	listener *net.TCPListener
}

// NewSocket creates a socket transport listening on cfg.Listen.
func NewSocket(cfg config.SocketConfig, log *logrus.Entry) *Socket {
	s := &Socket{
		addr:       cfg.Listen,
		timeout:    cfg.Timeout,
		idle:       cfg.IdleTimeout,
		maxPayload: cfg.MaxPayload,
		log:        log,
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.idle <= 0 {
		s.idle = 500 * time.Millisecond
	}
	if s.maxPayload <= 0 {
		s.maxPayload = 4096
	}
	return s
}

// Name returns the listen address.
func (s *Socket) Name() string { return "socket:" + s.Addr() }

// Addr returns the bound address, or the configured one before Connect.
func (s *Socket) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Connect binds the listener.
func (s *Socket) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bind()
}

func (s *Socket) bind() error {
	if s.listener != nil {
		return nil
	}

	var lc net.ListenConfig
	l, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.addr)
	}
	s.listener = l.(*net.TCPListener)
	s.log.Infof("listening on %s", s.listener.Addr())
	return nil
}

// Close releases the listener.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return errors.Wrap(err, "failed to close listener")
}

// Acquire accepts exactly one connection and reads its payload. The accept
// and the read share one deadline; once bytes arrive, a pause longer than
// the idle timeout ends the payload.
func (s *Socket) Acquire(ctx context.Context) (Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bind(); err != nil {
		return Acquisition{}, err
	}

	l := s.listener
	deadline := time.Now().Add(s.timeout)
	if err := l.SetDeadline(deadline); err != nil {
		return Acquisition{}, errors.Wrap(err, "failed to set accept deadline")
	}

	// Unblock Accept and Read when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	var conn net.Conn
	var connMu sync.Mutex
	go func() {
		select {
		case <-ctx.Done():
			l.SetDeadline(time.Now())
			connMu.Lock()
			if conn != nil {
				conn.SetReadDeadline(time.Now())
			}
			connMu.Unlock()
		case <-done:
		}
	}()

	c, err := l.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return Acquisition{}, ctx.Err()
		}
		if isTimeout(err) {
			return Acquisition{}, errors.Wrapf(ErrTimeout, "no connection within %s", s.timeout)
		}
		return Acquisition{}, errors.Wrap(err, "accept failed")
	}
	connMu.Lock()
	conn = c
	connMu.Unlock()
	defer c.Close()

	s.log.Debugf("box connected from %s", c.RemoteAddr())

	payload, err := s.read(ctx, c, deadline)
	if ctx.Err() != nil {
		return Acquisition{}, ctx.Err()
	}
	if err != nil {
		return Acquisition{}, err
	}

	data, err := frame.ParseText(payload)
	if err != nil {
		return Acquisition{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if len(data)%frame.Width != 0 {
		return Acquisition{}, errors.Wrapf(ErrMalformed, "%d fields is not a multiple of %d", len(data), frame.Width)
	}
	return Acquisition{Count: len(data) / frame.Width, Data: data}, nil
}

func (s *Socket) read(ctx context.Context, c net.Conn, deadline time.Time) ([]byte, error) {
	var payload []byte
	buf := make([]byte, 1024)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := deadline
		if len(payload) > 0 {
			if idle := time.Now().Add(s.idle); idle.Before(d) {
				d = idle
			}
		}
		if err := c.SetReadDeadline(d); err != nil {
			return nil, errors.Wrap(err, "failed to set read deadline")
		}

		n, err := c.Read(buf)
		payload = append(payload, buf[:n]...)
		if len(payload) > s.maxPayload {
			return nil, errors.Wrapf(ErrMalformed, "payload exceeds %d bytes", s.maxPayload)
		}

		switch {
		case err == nil:
			continue
		case err == io.EOF:
			return payload, nil
		case isTimeout(err):
			if len(payload) > 0 {
				return payload, nil
			}
			return nil, errors.Wrap(ErrTimeout, "connection delivered no data")
		default:
			return nil, errors.Wrap(err, "read failed")
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
