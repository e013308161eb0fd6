package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fleetd/internal/agent"
	"fleetd/internal/config"
	"fleetd/internal/health"
	"fleetd/internal/httpapi"
	"fleetd/internal/lifecycle"
	"fleetd/internal/registry"
	"fleetd/internal/router"
	"fleetd/internal/runlog"
	"fleetd/internal/runtime"
)

// proberTimeout bounds a single readiness GET during container start; the
// start loop keeps probing until the lifecycle start timeout.
const proberTimeout = 2 * time.Second

// serveOpts carries the serve flags after environment defaults are applied.
type serveOpts struct {
	configPath string
	addr       string
	logLevel   string
	logPretty  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fleetd: "+err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fleetd",
		Short:         "GPU inference fleet daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts := serveOpts{configPath: envOr("FLEETD_CONFIG", "fleetd.yaml")}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Load the fleet configuration and run the daemon",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return serveDaemon(opts)
		},
	}
	serve.Flags().StringVar(&opts.configPath, "config", opts.configPath,
		"Fleet configuration file (.yaml, .json or .toml); env FLEETD_CONFIG")
	serve.Flags().StringVar(&opts.addr, "addr", os.Getenv("FLEETD_ADDR"),
		"HTTP listen address, overrides the config file; env FLEETD_ADDR")
	serve.Flags().StringVar(&opts.logLevel, "log-level", os.Getenv("FLEETD_LOG_LEVEL"),
		"Log level (trace|debug|info|warn|error), overrides the config file; env FLEETD_LOG_LEVEL")
	serve.Flags().BoolVar(&opts.logPretty, "log-pretty", false,
		"Human-readable console logs instead of JSON")
	root.AddCommand(serve)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func serveDaemon(opts serveOpts) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", opts.configPath, err)
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.Server.LogLevel = opts.logLevel
	}

	logger := newLogger(cfg.Server.LogLevel, opts.logPretty)

	reg, err := registry.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid fleet configuration")
	}

	// Base context for everything the daemon runs in the background.
	// Request handlers join it, so cancelling after the HTTP drain
	// releases any stragglers.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var driver runtime.Driver
	var prober runtime.Prober
	switch cfg.Lifecycle.Driver {
	case "docker":
		d, err := runtime.NewDockerDriver(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("docker daemon unreachable")
		}
		driver = d
		prober = runtime.NewHTTPProber(proberTimeout)
	case "memory":
		driver = runtime.NewMemDriver()
		prober = &runtime.StaticProber{}
	default:
		logger.Fatal().Str("driver", cfg.Lifecycle.Driver).Msg("unknown lifecycle driver")
	}

	events := lifecycle.NewBroadcastPublisher()
	mgr := lifecycle.New(lifecycle.Config{
		Registry:      reg,
		Driver:        driver,
		Prober:        prober,
		SweepInterval: cfg.Lifecycle.SweepInterval(),
		IdleTimeout:   cfg.Lifecycle.IdleTimeout(),
		StartTimeout:  cfg.Lifecycle.StartTimeout(),
		Publisher:     events,
		Logger:        &logger,
	})

	mon := health.New(health.Config{
		Registry: reg,
		Interval: cfg.Health.Interval(),
		Timeout:  cfg.Health.Timeout(),
		Logger:   &logger,
	})

	rt := router.New(router.Config{
		Registry:      reg,
		Health:        mon,
		Scheduler:     mgr,
		Upstream:      router.NewHTTPUpstream(),
		DefaultModel:  cfg.Router.DefaultModel,
		FailoverDelay: cfg.Router.FailoverDelay(),
		Logger:        &logger,
	})

	sandbox, err := agent.NewLocalSandbox(cfg.Agent.SandboxRoot, cfg.Agent.ShellTimeout())
	if err != nil {
		logger.Fatal().Err(err).Msg("sandbox root unusable")
	}

	var store *runlog.Store
	if cfg.RunLog.Path != "" {
		store, err = runlog.Open(cfg.RunLog.Path, cfg.RunLog.RecentLimit)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.RunLog.Path).Msg("run log unusable")
		}
		defer store.Close()
	}

	agentCfg := agent.Config{
		Completer:   rt,
		Sandbox:     sandbox,
		Model:       cfg.Router.DefaultModel,
		MaxSteps:    cfg.Agent.MaxSteps,
		RetryBudget: cfg.Agent.RetryBudget,
		Logger:      &logger,
	}
	if store != nil {
		agentCfg.Recorder = store
	}
	exec := agent.New(agentCfg)

	go mgr.Run(ctx)
	go mon.Run(ctx)

	// Not ready until the keep-warm fleet has been brought up once.
	var ready atomic.Bool
	go func() {
		if err := mgr.StartKeepWarm(ctx); err != nil {
			logger.Warn().Err(err).Msg("keep-warm boot incomplete")
		}
		ready.Store(true)
	}()

	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.Server.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.Server.EnableCORS, nil, nil, nil)

	apiCfg := httpapi.Config{
		Registry: reg,
		Chat:     rt,
		Fleet:    mgr,
		Health:   mon,
		Agent:    exec,
		Events:   events,
		Ready:    ready.Load,
		Logger:   &logger,
	}
	if store != nil {
		apiCfg.Runs = store
	}
	mux := httpapi.NewMux(apiCfg)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("driver", cfg.Lifecycle.Driver).
			Int("models", len(reg.Models())).
			Msg("fleetd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM). Containers keep running; the
	// next boot re-adopts them through the runtime driver.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	// Drain HTTP before cancelling the base context: handlers join both.
	cancel()
	return nil
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var out = os.Stderr
	logger := zerolog.New(out)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}
	return logger.Level(lvl).With().Timestamp().Str("app", "fleetd").Logger()
}
