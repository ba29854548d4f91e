package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"weekcal/internal/config"
	"weekcal/internal/export"
	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	file       string
	days       int
	debug      bool
}

func main() {
	flags := parseFlags()

	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	// One-shot mode: parse a single document, print JSON, exit.
	if flags.file != "" {
		os.Exit(runOneShot(flags))
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if !flags.debug {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("weekcal starting",
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"window_days", conf.WindowDays,
		"source_count", len(conf.Sources),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	server := web.NewServer(conf, nil)

	// Warm the snapshot before serving. Partial failures are logged and
	// the API serves whatever loaded.
	if err := server.Refresh(ctx); err != nil {
		appLog.Warn("initial refresh incomplete", "err", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if err := server.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	if err := server.Serve(ctx); err != nil {
		appLog.Error("HTTP server stopped", err)
		os.Exit(1)
	}

	appLog.Info("weekcal exiting")
}

// runOneShot loads one ICS document (path, URL, or "-" for stdin),
// parses it, and prints the schedule as indented JSON on stdout. With
// -days N it also expands occurrences from today through today+N.
// Returns the process exit code.
func runOneShot(flags flagConfig) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loader := ics.NewLoader("", 0)
	res, err := loader.Load(ctx, ics.Source{ID: flags.file, Location: flags.file})
	if err != nil {
		appLog.Error("failed to load source", err, "location", flags.file)
		return 1
	}

	sched := ics.Parse(res.Body)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if flags.days <= 0 {
		if err := enc.Encode(export.FromSchedule(sched)); err != nil {
			appLog.Error("failed to encode schedule", err)
			return 1
		}
		return 0
	}

	from := time.Now()
	to := from.AddDate(0, 0, flags.days)
	occs := ics.ExpandAll(res.Source.ID, sched, from, to)

	payload := struct {
		Schedule    export.ScheduleDTO     `json:"schedule"`
		Occurrences []export.OccurrenceDTO `json:"occurrences"`
	}{
		Schedule:    export.FromSchedule(sched),
		Occurrences: export.FromOccurrences(occs),
	}
	if err := enc.Encode(payload); err != nil {
		appLog.Error("failed to encode schedule", err)
		return 1
	}
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/weekcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.file, "file", "", "Parse one ICS document (path, URL, or '-' for stdin), print JSON, and exit")
	flag.IntVar(&cfg.days, "days", 0, "With -file: also expand occurrences for the next N days")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
