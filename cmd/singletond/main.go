package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackborn/singleton"
	"github.com/jamiealquiza/envy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configFile    = flag.String("config", "", "YAML config file")
	resource      = flag.String("resource", "", "Lock resource (daemon name), overrides the config")
	node          = flag.String("node", "", "Node id, overrides the config")
	metricsListen = flag.String("metrics-listen", "", "Metrics HTTP listen address, overrides the config")
	logLevel      = flag.String("log-level", "info", "Log level")
	console       = flag.Bool("console", false, "Human-readable log output")
)

func main() {
	envy.Parse("SINGLETOND")
	flag.Parse()

	if *console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", *configFile).Msg("failed to load config")
	}
	cfg = applyFlags(cfg)
	if err := cfg.validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	reg := prometheus.NewRegistry()
	d := &daemon{cfg: cfg, log: log.Logger, metrics: singleton.NewMetrics()}
	d.metrics.Register(reg)

	m, err := d.newManager()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build lock manager")
	}

	srv := &http.Server{Addr: cfg.MetricsListen, Handler: metricsHandler(reg)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", cfg.MetricsListen).Msg("metrics listener stopped")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().
		Str("resource", cfg.Resource).
		Str("node", m.Self()).
		Str("store", string(cfg.Store.Type)).
		Msg("singletond running")
	err = singleton.Run(ctx, m, cfg.runOpts(), d.work())

	stopMetrics(srv, 5*time.Second)

	if err != nil {
		log.Fatal().Err(err).Str("resource", cfg.Resource).Msg("lock loop stopped")
	}
	log.Info().Msg("singletond stopped")
}

// applyFlags lets flags, or their SINGLETOND_ env vars, override the config file.
func applyFlags(cfg Config) Config {
	if *resource != "" {
		cfg.Resource = *resource
	}
	if *node != "" {
		cfg.Node = *node
	}
	if *metricsListen != "" {
		cfg.MetricsListen = *metricsListen
	}
	return cfg
}

// stopMetrics shuts the metrics listener down, waiting up to timeout.
func stopMetrics(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	if err != nil {
		log.Warn().Err(err).Str("addr", srv.Addr).Msg("metrics listener shutdown")
	}
	return err
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
