package main

import (
	"context"
	"net/http"
	"time"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/logging"
	"github.com/itohio/tempgraph/pkg/metrics"
	"github.com/itohio/tempgraph/pkg/output"
	"github.com/itohio/tempgraph/pkg/output/amqppub"
	"github.com/itohio/tempgraph/pkg/output/live"
	"github.com/itohio/tempgraph/pkg/output/mongostore"
	"github.com/itohio/tempgraph/pkg/output/redispub"
	"github.com/itohio/tempgraph/pkg/output/s3upload"
	"github.com/itohio/tempgraph/pkg/output/series"
	"github.com/itohio/tempgraph/pkg/output/textlog"
	"github.com/itohio/tempgraph/pkg/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// sinks owns every enabled output and the HTTP endpoints serving them.
type sinks struct {
	multi   *session.Multi
	closers []func()
}

func (s *sinks) Recorder() session.Recorder { return s.multi }

func (s *sinks) onClose(f func()) {
	s.closers = append(s.closers, f)
}

// Close releases outputs in reverse order of opening.
func (s *sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// openSinks builds the recorder fan-out. An output that cannot connect is
// logged and left out; the run goes ahead with the rest.
func openSinks(ctx context.Context, cfg *config.Config, params config.Params, logger *logrus.Logger) *sinks {
	log := logging.For(logger, "outputs")
	s := &sinks{multi: session.NewMulti(log)}
	out := cfg.Outputs

	if out.Text.Enabled {
		s.multi.Add("text", textlog.New(params.ResultsFile()))
	}
	if out.Series.Enabled {
		s.multi.Add("series", series.New(params.SeriesFile()))
	}

	if out.Metrics.Enabled {
		m := metrics.New()
		s.multi.Add("metrics", m)
		s.serve(out.Metrics.Listen, m.Handler(), logging.For(logger, "metrics"))
	}

	if out.Live.Enabled {
		hub := live.NewHub(logging.For(logger, "live"))
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		s.multi.Add("live", output.NewEventRecorder(hub))
		s.serve(out.Live.Listen, mux, logging.For(logger, "live"))
		s.onClose(func() { hub.Close() })
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if out.Mongo.Enabled {
		store, err := mongostore.Connect(dialCtx, out.Mongo, logging.For(logger, "mongo"))
		if err != nil {
			log.WithError(err).Warn("MongoDB output disabled")
		} else {
			s.multi.Add("mongo", store)
			s.onClose(func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				store.Close(ctx)
			})
		}
	}

	if out.Redis.Enabled {
		pub, err := redispub.Connect(dialCtx, out.Redis, logging.For(logger, "redis"))
		if err != nil {
			log.WithError(err).Warn("Redis output disabled")
		} else {
			s.multi.Add("redis", output.NewEventRecorder(pub))
			s.onClose(func() { pub.Close() })
		}
	}

	if out.AMQP.Enabled {
		pub, err := amqppub.Dial(out.AMQP, logging.For(logger, "amqp"))
		if err != nil {
			log.WithError(err).Warn("AMQP output disabled")
		} else {
			s.multi.Add("amqp", output.NewEventRecorder(pub))
			s.onClose(func() { pub.Close() })
		}
	}

	// Added last so the result files are complete when End uploads them.
	if out.S3.Enabled {
		up, err := s3upload.New(dialCtx, out.S3, logging.For(logger, "s3"))
		if err != nil {
			log.WithError(err).Warn("S3 upload disabled")
		} else {
			s.multi.Add("s3", up)
		}
	}

	log.WithField("outputs", s.multi.Len()).Info("Outputs ready")
	return s
}

// serve runs handler on addr until the sinks are closed.
func (s *sinks) serve(addr string, handler http.Handler, log *logrus.Entry) {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	go func() {
		log.WithField("addr", addr).Info("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server stopped")
		}
	}()
	s.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(ctx)
	})
}
