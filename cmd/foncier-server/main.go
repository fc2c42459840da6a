package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilemi-bj/foncier-geo/internal/analysis"
	"github.com/ilemi-bj/foncier-geo/internal/analysisevents"
	"github.com/ilemi-bj/foncier-geo/internal/cache/redisstore"
	"github.com/ilemi-bj/foncier-geo/internal/cache/reportcache"
	"github.com/ilemi-bj/foncier-geo/internal/core/config"
	"github.com/ilemi-bj/foncier-geo/internal/core/health"
	"github.com/ilemi-bj/foncier-geo/internal/core/server"
	"github.com/ilemi-bj/foncier-geo/internal/extract"
	"github.com/ilemi-bj/foncier-geo/internal/layers"
	"github.com/ilemi-bj/foncier-geo/internal/logger"
	h3mapper "github.com/ilemi-bj/foncier-geo/internal/mapper/h3"
	"github.com/ilemi-bj/foncier-geo/internal/metrics"
	"github.com/ilemi-bj/foncier-geo/internal/reproject"
	invkafka "github.com/ilemi-bj/foncier-geo/pkg/invalidation/kafka"
)

var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.FromEnv()
	if err != nil {
		boot := logger.Build(logger.Config{Level: "error"}, os.Stderr)
		boot.Error().Err(err).Msg("invalid configuration")
		return 2
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "foncier-server",
		Version:   Version,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting foncier-server",
		"addr", cfg.Addr,
		"version", Version,
		"data_dir", cfg.DataDir,
		"source_crs", cfg.SourceCRS,
		"report_cache", cfg.ReportCache.Enabled,
		"invalidation", cfg.Invalidation.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := metrics.Init(metrics.Config{
		Build: metrics.BuildInfo{Version: Version, Revision: Revision, BuildDate: BuildDate},
	})

	geo, err := reproject.New(cfg.SourceCRS)
	if err != nil {
		appLog.Error("unsupported source CRS", "crs", cfg.SourceCRS, "err", err)
		return 1
	}
	mapper := h3mapper.New(cfg.H3MaxCells)

	store := layers.NewStore(cfg.DataDir,
		layers.WithCacheSize(cfg.LayerCacheSize),
		layers.WithWorkers(cfg.LayerLoadWorkers),
		layers.WithLogger(appLog))

	opts := analysis.Options{
		Cells:   mapper,
		H3Res:   cfg.H3Res,
		Timeout: cfg.AnalysisTimeout,
		Logger:  appLog,
	}
	deps := server.Deps{Metrics: prov.Handler()}

	var reports *reportcache.Cache
	if cfg.ReportCache.Enabled {
		rc := cfg.ReportCache
		cli, err := redisstore.New(ctx, rc.RedisAddr,
			redisstore.WithPoolSize(rc.PoolSize),
			redisstore.WithMinIdleConns(rc.MinIdle),
			redisstore.WithDialTimeout(rc.DialTimeout),
			redisstore.WithReadTimeout(rc.OpTimeout),
			redisstore.WithWriteTimeout(rc.OpTimeout),
		)
		if err != nil {
			// analyses still run uncached
			appLog.Warn("report cache unavailable, continuing without it", "addr", cfg.ReportCache.RedisAddr, "err", err)
		} else {
			defer func() { _ = cli.Close() }()
			reports = reportcache.New(cli, mapper, geo, reportcache.Config{
				TTL:       cfg.ReportCache.TTL,
				OpTimeout: cfg.ReportCache.OpTimeout,
				Res:       cfg.H3Res,
			}, appLog)
			opts.Cache = reports
			deps.Checks = append(deps.Checks, health.Check{Name: "report_cache", Probe: reports.Ping})
		}
	}

	if cfg.Events.Enabled {
		pub, err := analysisevents.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.Queue, appLog)
		if err != nil {
			appLog.Warn("analysis events disabled", "brokers", cfg.Events.Brokers, "err", err)
		} else {
			defer func() {
				if err := pub.Close(); err != nil {
					appLog.Warn("analysis events close", "err", err)
				}
			}()
			opts.Events = pub
		}
	}

	runnerOpts := invkafka.Options{Logger: appLog, Register: prov.Registerer()}
	if reports != nil {
		runnerOpts.Reports = reports
	}
	runner := invkafka.New(invkafka.Config{
		Enabled:       cfg.Invalidation.Enabled,
		Brokers:       cfg.Invalidation.Brokers,
		Topic:         cfg.Invalidation.Topic,
		GroupID:       cfg.Invalidation.GroupID,
		InitialOldest: cfg.Invalidation.InitialOldest,
	}, store, runnerOpts)
	if err := runner.Start(ctx); err != nil {
		appLog.Error("invalidation runner failed to start", "err", err)
		return 1
	}
	defer runner.Stop()

	deps.Analyzer = analysis.New(store, geo, opts)
	deps.Extractor = extract.New(cfg.Extraction.URL, cfg.Extraction.Timeout)
	deps.Readiness = runner

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
