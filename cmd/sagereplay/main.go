// sagereplay drives a game client session against the remoting gateway:
// version check, analytics, events, login, character list and character
// detail, sending the same requests as the stock game client.
//
// Usage:
//
//	sagereplay [-config path] <command> [flags]
//
// Commands: run, serve, decode, history, setup, version.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sagereplay/sagereplay/internal/api"
	"github.com/sagereplay/sagereplay/internal/cli"
	"github.com/sagereplay/sagereplay/internal/config"
	"github.com/sagereplay/sagereplay/internal/db"
	"github.com/sagereplay/sagereplay/internal/events"
	"github.com/sagereplay/sagereplay/internal/scheduler"
	"github.com/sagereplay/sagereplay/internal/session"
	"github.com/sagereplay/sagereplay/internal/telemetry"
	"github.com/sagereplay/sagereplay/internal/util"
)

const usage = `Usage: sagereplay [-config path] <command> [flags]

Commands:
  run        Run one session and print the result (default)
  serve      Start the REST API, scheduled runs and optionally the interactive CLI
  decode     Decode captured envelope files
  history    List recorded sessions
  setup      Run the configuration wizard
  version    Print the version
`

func main() {
	configPath := flag.String("config", "", "configuration file (.json, .yaml or .yml)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cmd := "run"
	args := flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "run":
		err = cmdRun(ctx, *configPath, args)
	case "serve":
		err = cmdServe(ctx, *configPath, args)
	case "decode":
		err = cmdDecode(args)
	case "history":
		err = cmdHistory(ctx, *configPath, args)
	case "setup":
		err = cmdSetup(*configPath)
	case "version":
		fmt.Printf("sagereplay %s (%s/%s)\n", util.Version, runtime.GOOS, runtime.GOARCH)
	case "help", "-h", "--help":
		flag.Usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration, then reconfigures the
// logger from it.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := util.InitLogger(cfg.Logging); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return nil, errors.New("configuration validation failed, please fix the errors above")
	}

	log.Info().
		Str("version", util.Version).
		Str("config", cfg.Path()).
		Str("platform", runtime.GOOS).
		Msg("configuration ready")
	return cfg, nil
}

// app holds the components shared by run and serve.
type app struct {
	cfg    *config.Config
	bus    *events.EventBus
	store  *db.SessionStore
	mqtt   *telemetry.MQTTHandler
	runner *session.Runner
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, bus: events.NewEventBus()}

	if cfg.Database.Enabled {
		store, err := db.NewSessionStore(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		store.Subscribe(a.bus)
		a.store = store
	}

	if cfg.MQTT.Enabled {
		handler, err := telemetry.NewMQTTHandler(cfg.MQTT, a.bus)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT telemetry disabled")
		} else {
			a.mqtt = handler
		}
	}

	a.runner = session.NewRunner(cfg, a.bus, nil)
	return a, nil
}

// startTelemetry runs the MQTT handler in g when configured.
func (a *app) startTelemetry(ctx context.Context, g *errgroup.Group) {
	if a.mqtt == nil {
		return
	}
	g.Go(func() error {
		if err := a.mqtt.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("MQTT telemetry failed (non-fatal)")
		}
		return nil
	})
}

func (a *app) close() {
	a.bus.Stop()
	if a.store != nil {
		a.store.Close()
	}
}

func cmdRun(ctx context.Context, configPath string, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	fs.Parse(args)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if !cfg.HasCredentials() {
		config.PromptCredentials(cfg, os.Stdin, os.Stdout)
	}

	tctx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	a.startTelemetry(tctx, &g)

	report, runErr := a.runner.Run(ctx, nil)

	cancel()
	g.Wait()

	if report != nil {
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			cli.PrintReport(os.Stdout, report)
		}
	}
	return runErr
}

func cmdServe(ctx context.Context, configPath string, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	interactive := fs.Bool("interactive", false, "also start the interactive CLI on stdin")
	fs.Parse(args)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Quitting the CLI shuts the process down.
	a.bus.Subscribe(events.EventShutdown, "main.shutdown", func(context.Context, events.Event) error {
		cancel()
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	a.startTelemetry(gctx, g)

	if cfg.API.Enabled {
		server := api.NewServer(cfg, a.bus, a.runner, a.store)
		g.Go(func() error {
			log.Info().Int("port", cfg.API.Port).Msg("starting REST API server")
			return startWithRetry(gctx, "API server", server.Start, 5)
		})
	}

	var pruner scheduler.Pruner
	if a.store != nil {
		pruner = a.store
	}
	sched := scheduler.NewScheduler(cfg.Schedule, a.runner, pruner)
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})

	if *interactive {
		handler := cli.NewCLI(cfg, a.bus, a.runner, a.store, os.Stdin, os.Stdout)
		go handler.Start(gctx)
	} else if !cfg.API.Enabled && cfg.Schedule.RunIntervalSec == 0 {
		cancel()
		g.Wait()
		return errors.New("nothing to serve: api and scheduled runs are disabled and -interactive not set")
	}

	<-gctx.Done()
	log.Info().Msg("initiating graceful shutdown...")
	a.bus.Emit(context.Background(), events.Event{Type: events.EventShutdown, Source: "main"})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("sagereplay stopped")
	return nil
}

func cmdDecode(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: sagereplay decode <file> [file...]")
	}
	for _, path := range args {
		fmt.Printf("== %s\n", path)
		if err := cli.DecodeFile(os.Stdout, path); err != nil {
			return err
		}
	}
	return nil
}

func cmdHistory(ctx context.Context, configPath string, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of sessions to list")
	fs.Parse(args)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return errors.New("session history is disabled in the configuration")
	}
	store, err := db.NewSessionStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.List(ctx, *limit)
	if err != nil {
		return err
	}
	cli.PrintSessions(os.Stdout, sessions)
	return nil
}

func cmdSetup(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return config.RunSetupWizard(cfg, os.Stdin, os.Stdout)
}

// startWithRetry attempts to start a listener/server with retry on bind errors.
// Returns nil on success, or the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
