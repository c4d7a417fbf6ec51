package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connwatch/internal/api"
	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
	"github.com/dmdmdm-nz/connwatch/internal/netmon"
	"github.com/dmdmdm-nz/connwatch/internal/runtime"
	"github.com/dmdmdm-nz/connwatch/pkg/cli"
)

func main() {
	if err := cli.NewRootCommand(run).Execute(); err != nil {
		log.WithError(err).Error("connwatchd failed")
		os.Exit(1)
	}
}

func run(cfg *cli.Config) error {
	// Configure logging
	setLogLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FullTimestamp:   true,
	})

	log.Infof("Config: Host=%s", cfg.Host)
	log.Infof("Config: Port=%d", cfg.Port)
	log.Infof("Config: LogLevel=%s", cfg.LogLevel)
	log.Infof("Config: Source=%s", cfg.Source)
	log.Infof("Config: PollInterval=%s", cfg.PollInterval)
	log.Infof("Config: APIEnabled=%v", cfg.APIEnabled)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	watcher, err := netmon.NewWatcher(cfg.Source, cfg.PollInterval)
	if err != nil {
		return err
	}
	source := netmon.NewService(watcher)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	monitor := connectivity.NewMonitor(source, connectivity.WithMetrics(connectivity.NewMetrics(reg)))
	monitor.AddListenerFunc(func(state connectivity.State, transport connectivity.Transport) {
		log.WithFields(log.Fields{
			"state":     state,
			"transport": transport,
		}).Info("Connectivity changed")
	})

	// Register listeners BEFORE starting the monitor so the first transition
	// reaches everyone.
	var apiSvc *api.Service
	if cfg.APIEnabled {
		apiSvc = api.NewService(cfg.Host, cfg.Port, monitor, reg)
		monitor.AddListener(apiSvc)
	}

	// Closed in reverse order: api → monitor → source
	super := runtime.NewSupervisor()
	super.Add("source", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, source.Close)
	super.Add("monitor", monitor.Run, monitor.Destroy)
	if apiSvc != nil {
		super.Add("api", apiSvc.Start, apiSvc.Close)
	}

	if err := super.Start(ctx); err != nil {
		log.WithError(err).Error("Supervisor start failed")
		return err
	}
	if err := super.Wait(ctx); err != nil {
		log.WithError(err).Error("Supervisor wait failed")
		return err
	}
	return nil
}

func setLogLevel(level string) {
	switch level {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
