package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/coreman2200/funtimes-sacn/internal/app"
	"github.com/coreman2200/funtimes-sacn/internal/config"
	"github.com/coreman2200/funtimes-sacn/internal/led"
	"github.com/coreman2200/funtimes-sacn/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---- Flags (config.yaml supplies the rest) ----
	fs := pflag.NewFlagSet("sacnlight", pflag.ContinueOnError)
	var (
		configPath = fs.StringP("config", "c", "config.yaml", "path to config.yaml")
		initCfg    = fs.Bool("init", false, "write a default config to --config and exit")
		addr       = fs.String("addr", ":8080", "HTTP listen address, - disables")
		fps        = fs.Int("fps", 60, "target frames per second")
		brightness = fs.Float64("brightness", 1, "global brightness 0..1")
		driver     = fs.String("driver", "", "force every light's driver: sim | console | spi")
		simOnly    = fs.Bool("sim-only", false, "force simulation (no hardware output)")
		iface      = fs.String("iface", "", "network interface for multicast and mDNS")
		capPath    = fs.String("capture", "", "append received datagrams to this CBOR file")
		announce   = fs.Bool("announce", false, "advertise _sacn._udp over mDNS")
		level      = fs.String("log-level", "info", "trace | debug | info | warn | error")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)

	if *initCfg {
		if err := config.Save(*configPath, config.Default()); err != nil {
			return err
		}
		log.Info().Str("path", *configPath).Msg("wrote default config")
		return nil
	}

	// ---- Load config.yaml (optional) ----
	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", *configPath).Msg("no config; using one RGB light on universe 1")
		cfg = config.Default()
	} else if err != nil {
		return err
	}

	// ---- Flags given explicitly override config ----
	if fs.Changed("addr") {
		cfg.HTTP.Addr = *addr
	}
	if fs.Changed("fps") {
		cfg.FPS = *fps
	}
	if fs.Changed("brightness") {
		cfg.Brightness = *brightness
	}
	if fs.Changed("iface") {
		cfg.Receiver.Interface = *iface
	}
	if fs.Changed("capture") {
		cfg.Capture.Path = *capPath
	}
	if fs.Changed("announce") {
		cfg.Announce.Enabled = *announce
	}
	for i := range cfg.Lights {
		if *driver != "" {
			cfg.Lights[i].Output.Driver = *driver
		}
		if *simOnly {
			cfg.Lights[i].Output.Driver = led.KindSim
		}
	}

	core, err := app.InitCore(cfg, app.Options{Announce: true})
	if err != nil {
		return err
	}
	core.State.Config = cfg
	core.State.ConfigPath = *configPath

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- HTTP routes ----
	var srv *http.Server
	if cfg.HTTP.Addr != "-" {
		mux := http.NewServeMux()
		core.State.Routes(mux)
		srv = &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      ws.WithCORS(mux),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.Addr).Int("lights", len(cfg.Lights)).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server crashed")
				stop()
			}
		}()
	}

	// ---- Render loop until signalled ----
	err = core.Run(ctx, nil)
	log.Info().Msg("shutting down")
	if srv != nil {
		_ = srv.Close()
	}
	if cerr := core.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("close")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
