package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/logging"
	"github.com/itohio/tempgraph/pkg/probe"
	"github.com/itohio/tempgraph/pkg/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFlag    = flag.String("config", "config.yaml", "Configuration file path")
		portFlag      = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyAMA0)")
		transportFlag = flag.String("transport", "", "Transport override: serial, socket or mock")
		mockFlag      = flag.Bool("mock", false, "Use the simulated sensor box instead of hardware")
		dialogFlag    = flag.Bool("dialog", false, "Ask for the run parameters in a window")
		countFlag     = flag.Int("n", 0, "Maximum number of measurements (overrides config)")
		intervalFlag  = flag.Duration("interval", 0, "Measurement interval, whole minutes (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return exitUsage
	}
	if err := applyOverrides(cfg, *portFlag, *transportFlag, *mockFlag, *countFlag, *intervalFlag); err != nil {
		log.Print(err)
		return exitUsage
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		log.Printf("Failed to set up logging: %v", err)
		return exitUsage
	}
	defer closer.Close()
	mainLog := logging.For(logger, "main")

	var params config.Params
	if *dialogFlag {
		params = askParams(cfg, *configFlag, mainLog)
	} else {
		params, err = cfg.Run.Params()
		if err != nil {
			mainLog.WithError(err).Error("Invalid run parameters")
			return exitUsage
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := newTransport(cfg, logger)
	if err != nil {
		mainLog.WithError(err).Error("Failed to create transport")
		return exitUsage
	}
	if !params.Cancelled {
		if err := os.MkdirAll(cfg.Run.Directory, 0755); err != nil {
			mainLog.WithError(err).Error("Failed to create output directory")
			return exitFailed
		}
		connectTransport(transport, mainLog)
		defer transport.Close()
	}

	out := openSinks(ctx, cfg, params, logger)
	defer out.Close()

	scheduler := session.NewScheduler(params, transport, out.Recorder(), session.OptionsFrom(cfg.Acquisition), logging.For(logger, "session"))
	summary, err := scheduler.Run(ctx)
	reportSummary(mainLog, summary)
	if err != nil {
		mainLog.WithError(err).Error("Run failed")
		return exitFailed
	}
	return exitOK
}

// applyOverrides folds command line flags into the loaded configuration.
func applyOverrides(cfg *config.Config, port, transport string, mock bool, count int, interval time.Duration) error {
	if port != "" {
		cfg.Serial.Port = port
	}
	if transport != "" {
		cfg.Transport = transport
	}
	if mock {
		cfg.Transport = config.TransportMock
	}
	if count > 0 {
		cfg.Run.MaxMeasurements = count
	}
	if interval > 0 {
		if interval%time.Minute != 0 {
			return errors.Errorf("interval %s is not a whole number of minutes", interval)
		}
		cfg.Run.IntervalDays, cfg.Run.IntervalHours, cfg.Run.IntervalMinutes = splitInterval(interval)
	}
	return nil
}

// splitInterval breaks d into the days, hours and minutes the run section
// persists.
func splitInterval(d time.Duration) (days, hours, minutes int) {
	m := int(d / time.Minute)
	return m / (24 * 60), m % (24 * 60) / 60, m % 60
}

func newTransport(cfg *config.Config, logger *logrus.Logger) (probe.Transport, error) {
	switch cfg.Transport {
	case config.TransportSerial:
		return probe.NewSerial(cfg.Serial, logging.For(logger, "probe.serial")), nil
	case config.TransportSocket:
		return probe.NewSocket(cfg.Socket, logging.For(logger, "probe.socket")), nil
	case config.TransportMock:
		return probe.NewMock(cfg.Mock, logging.For(logger, "probe.mock")), nil
	default:
		return nil, errors.Errorf("unknown transport %q", cfg.Transport)
	}
}

// connectTransport opens the transport. A failure is not fatal: the
// handshake retries the source and reports a failed baseline.
func connectTransport(t probe.Transport, log *logrus.Entry) {
	if err := t.Connect(); err != nil {
		log.WithError(err).WithField("transport", t.Name()).Warn("Failed to connect")
	}
}

func reportSummary(log *logrus.Entry, s session.Summary) {
	log.WithFields(logrus.Fields{
		"reason":       s.Reason.String(),
		"completed":    s.Completed,
		"total":        s.TotalMeasurements,
		"no_data":      s.Stats.NoData,
		"wrong_count":  s.Stats.WrongCount,
		"wrong_order":  s.Stats.WrongOrder,
		"run_time":     s.RunTime().String(),
		"last_measure": s.End.Format(time.RFC3339),
	}).Info("Run finished")
}
