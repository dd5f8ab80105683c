package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/smdcollect/smdcollect/internal/archive"
	"github.com/smdcollect/smdcollect/internal/collector"
	"github.com/smdcollect/smdcollect/internal/config"
	"github.com/smdcollect/smdcollect/internal/scheduler"
	"github.com/smdcollect/smdcollect/internal/sink"
	"github.com/smdcollect/smdcollect/internal/smd"
)

// Command smdcollect collects Green Button energy usage data from the
// PG&E Share My Data API.
//
// The collector supports:
//   - OAuth2 client-credentials authentication over mTLS
//   - Asynchronous bulk data requests (latest, single day, historical)
//   - Resource fetch and ingestion into PostgreSQL
//   - DST-correcting ESPI XML parsing (24 readings per day)
//   - Scheduled daily collection via cron
//
// Usage:
//
//	smdcollect [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
//	-status
//	      check the utility service status and exit
//	-register
//	      complete Self Access registration testing and print the
//	      third party ID
//	-request string
//	      submit a bulk data request and exit: latest, day, or
//	      historical
//	-date string
//	      day to request in YYYY-MM-DD form (with -request day)
//	-days int
//	      number of days to request (with -request historical)
//	-fetch string
//	      fetch a single resource URI, ingest it, and exit
//	-notify string
//	      ingest a saved notification XML file and exit
//
// With no one-shot flag the collector runs as a daemon, submitting a
// bulk request for the previous day on the configured schedule.
func main() {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}

	session, loc, err := buildSession(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create API session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case opts.status:
		runStatus(ctx, session, logger)
	case opts.register:
		runRegister(ctx, session, logger)
	case opts.request != "":
		runRequest(ctx, session, loc, logger, opts)
	case opts.fetch != "" || opts.notify != "":
		runIngest(ctx, cfg, session, logger, opts)
	default:
		runDaemon(ctx, cancel, cfg, session, loc, logger)
	}
}

type cliOptions struct {
	configPath string
	status     bool
	register   bool
	request    string
	date       string
	days       int
	fetch      string
	notify     string
}

func parseFlags() *cliOptions {
	opts := &cliOptions{}

	flag.StringVar(&opts.configPath, "config", "config.yaml", "Path to config file")
	flag.BoolVar(&opts.status, "status", false, "Check the utility service status and exit")
	flag.BoolVar(&opts.register, "register", false, "Complete registration testing and print the third party ID")
	flag.StringVar(&opts.request, "request", "", "Submit a bulk data request: latest, day, or historical")
	flag.StringVar(&opts.date, "date", "", "Day to request in YYYY-MM-DD form (with -request day)")
	flag.IntVar(&opts.days, "days", 730, "Number of days to request (with -request historical)")
	flag.StringVar(&opts.fetch, "fetch", "", "Fetch a single resource URI, ingest it, and exit")
	flag.StringVar(&opts.notify, "notify", "", "Ingest a saved notification XML file and exit")

	flag.Parse()

	return opts
}

func buildLogger(cfg config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger, nil
}

func buildSession(cfg *config.Config, logger *logrus.Logger) (*smd.Session, *time.Location, error) {
	creds, err := smd.LoadCredentials(cfg.SMD.AuthPath)
	if err != nil {
		return nil, nil, err
	}

	loc, err := time.LoadLocation(cfg.SMD.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid timezone %q: %w", cfg.SMD.Timezone, err)
	}

	endpoints := smd.Endpoints{
		TokenURL:         cfg.SMD.TokenURL,
		UtilityURL:       cfg.SMD.UtilityURL,
		APIPath:          cfg.SMD.APIPath,
		ServiceStatusURL: cfg.SMD.ServiceStatusURL,
	}

	session, err := smd.NewSession(creds, endpoints, logger, smd.WithLocation(loc))
	if err != nil {
		return nil, nil, err
	}

	return session, loc, nil
}

// buildCollector wires the fetch/archive/parse/store pipeline. The
// returned cleanup closes the database connection.
func buildCollector(cfg *config.Config, session *smd.Session, logger *logrus.Logger) (*collector.Collector, func(), error) {
	repo, err := sink.NewPostgresRepo(cfg.Database.ConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create repository: %w", err)
	}

	arc, err := archive.New(cfg.Collector.ArchiveDir, logger)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}

	coll, err := collector.New(session, repo, arc, logger, cfg.Collector.SeenCacheSize)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}

	collector.RegisterMetrics(prometheus.DefaultRegisterer)

	cleanup := func() {
		if err := repo.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close repository")
		}
	}

	return coll, cleanup, nil
}

func runStatus(ctx context.Context, session *smd.Session, logger *logrus.Logger) {
	online, err := session.ServiceStatus(ctx)
	if err != nil {
		logger.Fatalf("Service status check failed: %v", err)
	}
	if !online {
		logger.Warn("Utility service is offline")
		os.Exit(1)
	}
	logger.Info("Utility service is online")
}

func runRegister(ctx context.Context, session *smd.Session, logger *logrus.Logger) {
	reg := smd.NewRegistration(session)

	thirdPartyID, err := reg.CompleteTesting(ctx)
	if err != nil {
		logger.Fatalf("Registration testing failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"third_party_id": thirdPartyID,
	}).Info("Registration testing complete")
	fmt.Println(thirdPartyID)
}

func runRequest(ctx context.Context, session *smd.Session, loc *time.Location, logger *logrus.Logger, opts *cliOptions) {
	var err error

	switch opts.request {
	case "latest":
		err = session.RequestLatest(ctx)
	case "day":
		var day time.Time
		day, err = time.ParseInLocation("2006-01-02", opts.date, loc)
		if err != nil {
			logger.Fatalf("Invalid -date %q: %v", opts.date, err)
		}
		err = session.RequestDay(ctx, day.Year(), day.Month(), day.Day())
	case "historical":
		err = session.RequestHistorical(ctx, opts.days, time.Time{})
	default:
		logger.Fatalf("Unknown request kind %q (want latest, day, or historical)", opts.request)
	}

	if err != nil {
		logger.Fatalf("Bulk data request failed: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"kind": opts.request,
	}).Info("Bulk data request accepted")
}

func runIngest(ctx context.Context, cfg *config.Config, session *smd.Session, logger *logrus.Logger, opts *cliOptions) {
	coll, cleanup, err := buildCollector(cfg, session, logger)
	if err != nil {
		logger.Fatalf("Failed to build collector: %v", err)
	}
	defer cleanup()

	var stored int
	if opts.fetch != "" {
		stored, err = coll.Collect(ctx, opts.fetch)
	} else {
		var body []byte
		body, err = os.ReadFile(opts.notify)
		if err != nil {
			logger.Fatalf("Failed to read notification file: %v", err)
		}
		stored, err = coll.IngestNotification(ctx, body)
	}

	if err != nil {
		logger.Fatalf("Ingestion failed: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"readings": stored,
	}).Info("Ingestion complete")
}

func runDaemon(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, session *smd.Session, loc *time.Location, logger *logrus.Logger) {
	if !cfg.Schedule.Enabled {
		logger.Fatal("No one-shot flag given and schedule is disabled; nothing to do")
	}

	sched := scheduler.New(ctx, session, loc, cfg.Schedule.DailySpec, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"spec": cfg.Schedule.DailySpec,
	}).Info("Collector started")

	handleShutdown(ctx, cancel, sched, logger)
}

// Handle graceful shutdown
func handleShutdown(ctx context.Context, cancel context.CancelFunc, sched *scheduler.Scheduler, logger *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Println("Context canceled, initiating shutdown")
	case sig := <-sigChan:
		logger.Printf("Received signal %v, initiating shutdown", sig)
	}

	logger.Println("Gracefully stopping collector...")
	sched.Stop()
	cancel()
	logger.Println("Collector stopped")
}
