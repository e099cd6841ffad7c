package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/obsidianstack/ctrlperf/agent/internal/alerts"
	"github.com/obsidianstack/ctrlperf/agent/internal/analysis"
	"github.com/obsidianstack/ctrlperf/agent/internal/config"
	"github.com/obsidianstack/ctrlperf/agent/internal/fetcher"
	"github.com/obsidianstack/ctrlperf/agent/internal/influx"
	"github.com/obsidianstack/ctrlperf/agent/internal/security"
	"github.com/obsidianstack/ctrlperf/agent/internal/series"
	"github.com/obsidianstack/ctrlperf/agent/internal/sink"
	"github.com/obsidianstack/ctrlperf/agent/internal/status"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional KEY=VALUE file loaded before the config")
	once := flag.Bool("once", false, "run a single analysis cycle, print the report as JSON and exit")
	flag.Parse()

	os.Exit(run(*configPath, *envPath, *once))
}

func run(configPath, envPath string, once bool) int {
	if err := config.LoadEnvFile(envPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}

	if err := alerts.ValidateRules(cfg.Alerts.Rules); err != nil {
		fmt.Fprintln(os.Stderr, "invalid alert rules:", err)
		return 1
	}

	logger, level, err := newLogger(cfg.Agent.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	zap.L().Info("ctrlperf-agent starting",
		zap.String("config", configPath),
		zap.String("influx_url", cfg.Influx.URL),
		zap.String("bucket", cfg.Influx.Bucket),
		zap.Duration("interval", cfg.Agent.Interval),
		zap.Int("window_size", cfg.Agent.WindowSize),
		zap.Bool("once", once))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := influx.Open(ctx, influx.Options{
		URL:                cfg.Influx.URL,
		Token:              cfg.Influx.Token(),
		Org:                cfg.Influx.Org,
		Bucket:             cfg.Influx.Bucket,
		Timeout:            cfg.Influx.Timeout,
		InsecureSkipVerify: cfg.Influx.TLS.InsecureSkipVerify,
	})
	if err != nil {
		zap.L().Error("failed to connect to store", zap.Error(err))
		return 1
	}
	defer client.Close()

	var spool *sink.Spool
	if sp := cfg.Sink.Spool; sp.Enabled() {
		spool, err = sink.OpenSpool(sp.Path, sp.CompressionLevel)
		if err != nil {
			zap.L().Error("failed to open spool", zap.Error(err))
			return 1
		}
		defer spool.Close()
	}

	analyzer := analysis.New(
		fetcher.New(client, cfg.Influx.Bucket, cfg.Agent.Lookback, selectors(cfg.Agent.Signals)),
		series.NewAligner(cfg.Agent.WindowSize),
		sink.NewInfluxSink(client, tags(cfg.Agent.Loops), spool),
	)

	if once {
		return runOnce(ctx, analyzer)
	}

	st := status.NewStore(cfg.Status.History)
	alertEngine := alerts.New(cfg.Alerts)
	certs := security.NewMonitor(cfg.Influx.URL, cfg.Influx.TLS.InsecureSkipVerify, 0)
	go certs.Run(ctx)

	if spool != nil {
		go sink.NewReplayer(spool, client, cfg.Sink.Spool.ReplayInterval, cfg.Sink.Spool.ReplayBatch).Run(ctx)
	}

	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			if err := level.UnmarshalText([]byte(updated.Agent.LogLevel)); err != nil {
				zap.L().Warn("config reload: bad log level", zap.Error(err))
			}
			if err := alerts.ValidateRules(updated.Alerts.Rules); err != nil {
				zap.L().Error("config reload: keeping previous alert rules", zap.Error(err))
				return
			}
			alertEngine.SetRules(updated.Alerts.Rules)
			zap.L().Info("config hot-reloaded",
				zap.String("log_level", updated.Agent.LogLevel),
				zap.Int("alert_rules", len(updated.Alerts.Rules)))
		}); err != nil {
			zap.L().Error("config watcher stopped", zap.Error(err))
		}
	}()

	var httpSrv *http.Server
	if cfg.Status.HTTPPort > 0 {
		hub := status.NewHub(st, cfg.Status.BroadcastInterval)
		go hub.Run(ctx)

		src := status.Sources{Alerts: alertEngine, Cert: certs.Latest}
		if spool != nil {
			src.SpoolLen = spool.Len
		}
		auth := cfg.Status.Auth
		guard := func(h http.Handler) http.Handler {
			return status.RequireAPIKey(auth.Mode, auth.EffectiveHeader(), auth.Key(), h)
		}
		api := guard(status.New(st, src))

		mux := http.NewServeMux()
		mux.Handle("/api/", api)
		mux.Handle("/metrics", api)
		mux.Handle("/ws/stream", guard(hub))

		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Status.HTTPPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			zap.L().Info("status server listening", zap.Int("port", cfg.Status.HTTPPort))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.L().Error("status server stopped", zap.Error(err))
			}
		}()
	}

	cycle := func() {
		rep, err := analyzer.RunCycle(ctx)
		if errors.Is(err, analysis.ErrBusy) {
			zap.L().Warn("previous cycle still running, skipping tick")
			return
		}
		st.Put(rep)
		if rep.Result != nil {
			alertEngine.Evaluate(rep.Result)
		}
	}

	cycle()
	ticker := time.NewTicker(cfg.Agent.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("ctrlperf-agent shutting down")
			if httpSrv != nil {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
				done()
			}
			alertEngine.Wait()
			return 0
		case <-ticker.C:
			cycle()
		}
	}
}

// runOnce runs a single cycle and prints its report to stdout.
func runOnce(ctx context.Context, a *analysis.Analyzer) int {
	rep, err := a.RunCycle(ctx)
	if rep != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(rep); encErr != nil {
			zap.L().Error("failed to print report", zap.String("cycle", rep.ID), zap.Error(encErr))
			return 1
		}
	}
	if err != nil {
		return 1
	}
	return 0
}

// newLogger builds a JSON production logger whose level can be changed at
// runtime through the returned AtomicLevel.
func newLogger(levelText string) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(levelText)
	if err != nil {
		return nil, level, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	logger, err := zc.Build()
	return logger, level, err
}

func selectors(s config.SignalsConfig) [4]influx.Selector {
	var out [4]influx.Selector
	for i, ref := range s.List() {
		out[i] = influx.Selector{Measurement: ref.Measurement, Field: ref.Field}
	}
	return out
}

func tags(l config.LoopsConfig) [2]sink.Tag {
	return [2]sink.Tag{
		{Key: l.Loop1.TagKey, Value: l.Loop1.TagValue},
		{Key: l.Loop2.TagKey, Value: l.Loop2.TagValue},
	}
}
