// Command sentinel runs one pass of the URL monitor: load the run
// config, stand up the shared backends, and either fan the resolved
// targets out across the Run Orchestrator (mode: monitor) or replay the
// dead-letter backlog (mode: replay_dead_letter).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/sentinel-webhook/monitor/internal/common/logger"
	"github.com/sentinel-webhook/monitor/internal/common/metricsserver"
	redisclient "github.com/sentinel-webhook/monitor/internal/common/redis"
	"github.com/sentinel-webhook/monitor/internal/common/requestid"
	"github.com/sentinel-webhook/monitor/internal/config"
	"github.com/sentinel-webhook/monitor/internal/deadletter"
	"github.com/sentinel-webhook/monitor/internal/fetch"
	"github.com/sentinel-webhook/monitor/internal/metrics"
	"github.com/sentinel-webhook/monitor/internal/orchestrator"
	"github.com/sentinel-webhook/monitor/internal/pipeline"
	"github.com/sentinel-webhook/monitor/internal/politeness"
	"github.com/sentinel-webhook/monitor/internal/safety"
	"github.com/sentinel-webhook/monitor/internal/state"
	"github.com/sentinel-webhook/monitor/internal/webhook"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sentinel <config.yaml>")
		return 2
	}

	cfg, err := config.LoadConfig(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if cfg.Debug {
		cfg.Logging.Level = config.LogLevelDebug
	}
	if cfg.StructuredLogs {
		if cfg.Logging.Console.Enabled {
			cfg.Logging.Console.Format = config.LogFormatJSON
		}
		if cfg.Logging.File.Enabled {
			cfg.Logging.File.Format = config.LogFormatJSON
		}
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer log.Sync() //nolint:errcheck

	if cfg.RedactLogs {
		log.Logger = log.Logger.WithOptions(zap.WrapCore(logger.RedactingCore))
	}

	rdb, err := redisclient.NewClient(&config.RedisConfig{Addr: cfg.StateRedisAddr, DB: cfg.StateRedisDB}, log.Logger)
	if err != nil {
		log.Error("connect redis", zap.Error(err))
		return 1
	}

	store := state.NewWithCompression(rdb, cfg.StateCompression)
	guard := safety.New(nil)
	metricsCollector := metrics.New("sentinel", log.Logger)

	metricsSrv, err := metricsserver.StartMetricsServer(cfg.Metrics.Enabled, cfg.Metrics.Listen, cfg.Metrics.Path, metricsCollector, log.Logger)
	if err != nil {
		log.Error("start metrics server", zap.Error(err))
		return 1
	}
	if metricsSrv != nil {
		defer metricsSrv.Shutdown() //nolint:errcheck
	}

	targets := config.ResolveTargets(cfg)

	switch cfg.Mode {
	case config.ModeMonitor:
		if len(targets) == 0 {
			log.Error("no targets resolved from config")
			return 2
		}
		return runMonitor(log, cfg, store, guard, metricsCollector, targets)
	case config.ModeReplayDeadLetter:
		return runReplay(log, cfg, store, guard, targets)
	default:
		log.Error("unknown mode", zap.String("mode", cfg.Mode))
		return 2
	}
}

func runMonitor(log *logger.DynamicLogger, cfg *config.RunConfig, store *state.Client, guard *safety.Guard, metricsCollector *metrics.Metrics, targets []config.ResolvedTarget) int {
	gate := politeness.New()
	staticBackend := fetch.NewStaticBackend(guard, gate, fetch.NoopRobotsChecker{}, cfg.TargetDomainAllowlist, cfg.TargetDomainDenylist, cfg.PolitenessDelayMs, cfg.PolitenessJitterMs, cfg.RobotsMode)
	renderedBackend := fetch.NewRenderedBackend(guard, cfg.TargetDomainAllowlist, cfg.TargetDomainDenylist)
	deliverer := webhook.New(guard)

	pl := &pipeline.Pipeline{
		Store:     store,
		Guard:     guard,
		Static:    staticBackend,
		Rendered:  renderedBackend,
		Deliverer: deliverer,
		Logger:    log.Logger,
	}

	orch := &orchestrator.Orchestrator{
		Pipeline:         pl,
		Metrics:          metricsCollector,
		Logger:           log.Logger,
		MaxConcurrency:   cfg.MaxConcurrency,
		ScheduleJitterMs: cfg.ScheduleJitterMs,
	}

	runID := newRunID()
	events, summary := orch.Run(context.Background(), runID, targets)

	// A single-tick CLI's shutdown sequence is its final summary log; make
	// sure it lands regardless of a configured level above INFO.
	log.EnsureInfoLevelForShutdown()
	log.Info("run complete",
		zap.String("run_id", runID),
		zap.Int("targets", summary.TargetCount),
		zap.Int("events", len(events)),
		zap.Int("failing", len(summary.FailingURLs)),
	)

	if err := json.NewEncoder(os.Stdout).Encode(summary); err != nil {
		log.Error("encode run summary", zap.Error(err))
	}

	return 0
}

func runReplay(log *logger.DynamicLogger, cfg *config.RunConfig, store *state.Client, guard *safety.Guard, targets []config.ResolvedTarget) int {
	if cfg.Replay == nil {
		log.Error("mode replay_dead_letter requires a replay config block")
		return 2
	}

	deliverer := webhook.New(guard)
	replayer := &deadletter.Replayer{
		Store:     store,
		Deliverer: deliverer,
		Logger:    log.Logger,
		Targets:   deadletter.IndexTargets(targets, pipeline.StateKey),
	}

	summary, err := replayer.Replay(context.Background(), *cfg.Replay)
	if err != nil {
		log.Error("replay dead letters", zap.Error(err))
		return 1
	}

	log.EnsureInfoLevelForShutdown()
	log.Info("replay complete",
		zap.Int("total", summary.Total),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Bool("dry_run", summary.DryRun),
	)

	if err := json.NewEncoder(os.Stdout).Encode(summary); err != nil {
		log.Error("encode replay summary", zap.Error(err))
	}

	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func newRunID() string {
	return requestid.GenerateRequestID("run")
}
