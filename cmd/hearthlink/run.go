package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hearthlink/hearthlink/internal/api"
	"github.com/hearthlink/hearthlink/internal/cli"
	"github.com/hearthlink/hearthlink/internal/command"
	"github.com/hearthlink/hearthlink/internal/config"
	"github.com/hearthlink/hearthlink/internal/db"
	"github.com/hearthlink/hearthlink/internal/events"
	"github.com/hearthlink/hearthlink/internal/metrics"
	"github.com/hearthlink/hearthlink/internal/network"
	"github.com/hearthlink/hearthlink/internal/reply"
	"github.com/hearthlink/hearthlink/internal/session"
	"github.com/hearthlink/hearthlink/internal/telemetry"
	"github.com/hearthlink/hearthlink/internal/util"
	"github.com/hearthlink/hearthlink/internal/world"
)

func runCmd(configDir *string) *cobra.Command {
	var console bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect, log in and stay online",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(*configDir, console)
		},
	}

	cmd.Flags().BoolVar(&console, "console", true, "read commands from stdin")
	return cmd
}

func run(configDir string, console bool) error {
	printBanner()

	// Defaults first, reconfigured after config load
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting Hearthlink")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging := cfg.GetLogging()
	if err := util.InitLogger(util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxBackups: logging.MaxBackups,
		Console:    logging.Console,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	validation.Log()
	if !validation.IsValid() {
		if !cfg.IsFirstRun() {
			return errors.New("configuration validation failed, please fix the errors above")
		}
		log.Info().Msg("first run detected, launching setup wizard")
		if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("setup wizard failed: %w", err)
		}
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	netCfg := cfg.GetNetwork()
	commands, err := command.NewRegistry()
	if err != nil {
		return err
	}
	replies, err := reply.NewRegistry(&reply.Env{
		World:       world.NewState(),
		Events:      eventBus,
		StripeBatch: netCfg.StripeBatch,
	})
	if err != nil {
		return err
	}

	opts := network.DefaultOptions(cfg.GetServer().Address())
	opts.ConnectTimeout = netCfg.ConnectTimeout()
	opts.ShutdownGrace = netCfg.ShutdownGrace()
	opts.KeepAliveDelay = netCfg.KeepAliveDelay()
	opts.KeepAliveInterval = netCfg.KeepAliveInterval()
	opts.PartialTimeout = netCfg.PartialTimeout()
	opts.ReadPoll = netCfg.ReadPoll()
	opts.WriteTimeout = netCfg.WriteTimeout()
	opts.DelayedPoll = netCfg.DelayedPoll()
	client := network.NewClient(opts, commands, replies, eventBus, m)

	var journal *db.Journal
	if journalCfg := cfg.GetJournal(); journalCfg.Enabled {
		journal, err = db.NewJournal(journalCfg.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open session journal, journal disabled")
		} else {
			defer journal.Close()
			journal.Attach(eventBus)
		}
	}

	var mqttHandler *telemetry.MQTTHandler
	if mqttCfg := cfg.GetMQTT(); mqttCfg.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(mqttCfg, version, eventBus, client)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	apiOpts := api.Options{
		Version:  version,
		Config:   cfg,
		Gatherer: registry,
		LogDir:   logging.Directory,
	}
	if journal != nil {
		apiOpts.Journal = journal
	}
	var apiServer *api.Server
	if apiCfg := cfg.GetAPI(); apiCfg.Enabled {
		apiServer = api.NewServer(apiCfg, client, apiOpts)
	}

	sess := session.New(client, eventBus, cfg.GetAccount())
	sess.ReconnectDelay = netCfg.ReconnectDelay()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sess.Run(ctx); err != nil {
			log.Error().Err(err).Msg("session manager stopped")
		}
	}()

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("diagnostics API failed (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	if console {
		var consoleJournal cli.Journal
		if journal != nil {
			consoleJournal = journal
		}
		c := cli.NewCLI(client, consoleJournal, cancel, os.Stdin, os.Stdout)
		c.SetSettings(cfg)
		go c.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	eventBus.Emit(context.Background(), events.Event{
		Type:   events.EventShutdown,
		Source: "main",
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()
	log.Info().Msg("Hearthlink stopped")
	return nil
}
