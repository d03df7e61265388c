package logging

import (
	"io"
	"os"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TimestampFormat is used by both formatters.
const TimestampFormat = "2006-01-02 15:04:05"

// New builds a logger from cfg. The returned closer releases the log file,
// if one was opened.
func New(cfg config.LogConfig) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: TimestampFormat,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat,
		})
	}

	var closer io.Closer = nopCloser{}
	if cfg.Output == "file" {
		if cfg.FilePath == "" {
			return nil, nil, errors.New("log output is file but file_path is empty")
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open log file")
		}
		log.SetOutput(file)
		closer = file
	} else {
		log.SetOutput(os.Stdout)
	}

	return log, closer, nil
}

// For returns an entry tagged with the component name.
func For(log logrus.FieldLogger, component string) *logrus.Entry {
	return log.WithField("component", component)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
