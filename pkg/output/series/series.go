// Package series stores readings as a wide CSV time series: one row per
// cycle keyed by the scheduled unix time, one column per sensor.
package series

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/itohio/tempgraph/pkg/session"
	"github.com/pkg/errors"
)

// Store writes the series file. Failed cycles leave every sensor cell empty.
type Store struct {
	path string

	mu      sync.Mutex
	file    *os.File
	writer  *csv.Writer
	columns map[int]int
	rows    int
}

var _ session.Recorder = (*Store)(nil)

// New creates a store at path. The file is created on Begin.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the series file path.
func (s *Store) Path() string { return s.path }

// Rows returns the number of data rows written.
func (s *Store) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Header returns the column names for a catalog.
func Header(sensors []session.Sensor) []string {
	header := make([]string, 0, len(sensors)+1)
	header = append(header, "time")
	for _, sn := range sensors {
		header = append(header, fmt.Sprintf("sensor_%d", sn.DeviceID))
	}
	return header
}

func (s *Store) Begin(_ context.Context, run session.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeFile()

	f, err := os.Create(s.path)
	if err != nil {
		return errors.Wrapf(err, "create %s", s.path)
	}
	s.file = f
	s.writer = csv.NewWriter(f)
	s.rows = 0
	s.columns = make(map[int]int, len(run.Sensors))
	for i, sn := range run.Sensors {
		s.columns[sn.DeviceID] = i + 1
	}

	if err := s.writer.Write(Header(run.Sensors)); err != nil {
		return errors.Wrap(err, "write series header")
	}
	s.writer.Flush()
	return errors.Wrap(s.writer.Error(), "write series header")
}

func (s *Store) Record(_ context.Context, m session.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return errors.New("series file not open")
	}

	row := make([]string, len(s.columns)+1)
	row[0] = strconv.FormatInt(m.Scheduled.Unix(), 10)
	if !m.Failed() {
		for _, r := range m.Readings {
			col, ok := s.columns[r.DeviceID]
			if !ok {
				continue
			}
			row[col] = strconv.FormatFloat(r.Fahrenheit, 'f', 1, 64)
		}
	}

	if err := s.writer.Write(row); err != nil {
		return errors.Wrap(err, "write series row")
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return errors.Wrap(err, "write series row")
	}
	s.rows++
	return nil
}

func (s *Store) End(context.Context, session.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFile()
}

func (s *Store) closeFile() error {
	var err error
	if s.writer != nil {
		s.writer.Flush()
		err = s.writer.Error()
		s.writer = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	return errors.Wrap(err, "close series file")
}
