// asfs-rx runs the adaptive spreading-factor search on a USB LoRa bridge
//
// The receiver cycles CAD through SF7-SF11 until a preamble is found, then
// opens a receive window and hands each frame to NATS (when configured) and
// to the status server.
//
// Examples:
//
//	# Defaults, first bridge found
//	./asfs-rx
//
//	# Device #1 with its saved configuration, forward to a local NATS
//	./asfs-rx -d '#1' -nats nats://127.0.0.1:4222
//
//	# Start the search at SF10 in CAD_ONLY mode, serve status on :8080
//	./asfs-rx -sf SF10 -mode CAD_ONLY -listen :8080
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gousb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/herlein/asfs/pkg/asfs"
	"github.com/herlein/asfs/pkg/config"
	"github.com/herlein/asfs/pkg/forward"
	"github.com/herlein/asfs/pkg/radio"
	"github.com/herlein/asfs/pkg/status"
	"github.com/herlein/asfs/pkg/usbradio"
)

var (
	configPath = flag.String("config", "", "Configuration file (default etc/asfs/<serial>.yaml if present)")
	deviceSel  = flag.String("d", "", usbradio.DeviceFlagUsage())
	startSF    = flag.String("sf", "", "Spreading factor the search starts at (SF7-SF12)")
	exitMode   = flag.String("mode", "", "CAD exit mode: CAD_ONLY, CAD_RX or CAD_LBT")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	natsURL    = flag.String("nats", "", "NATS server URL for packet forwarding")
	listenAddr = flag.String("listen", "", "Status server address, e.g. :8080")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Adaptive spreading-factor LoRa receiver\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -d '#0' -listen :8080\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -sf SF9 -mode CAD_RX -nats nats://127.0.0.1:4222\n", os.Args[0])
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Receiver stopped")
	}
}

func run() error {
	usb := gousb.NewContext()
	defer usb.Close()

	device, err := usbradio.SelectDevice(usb, usbradio.DeviceSelector(*deviceSel))
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer device.Close()

	log.Info().Stringer("device", device).Msg("Connected to bridge")

	file, err := loadConfig(device.Serial)
	if err != nil {
		return err
	}

	level := file.Log.Level
	if *logLevel != "" {
		level = *logLevel
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	sf, mode, err := startParams(file)
	if err != nil {
		return err
	}

	cfg := file.ToSessionConfig()
	cfg.Logger = log.Logger

	url := file.NATS.URL
	if *natsURL != "" {
		url = *natsURL
	}
	if url != "" {
		nc, err := forward.Connect(forward.Options{
			URL:               url,
			Name:              file.NATS.Name,
			Username:          file.NATS.Username,
			Password:          file.NATS.Password,
			MaxReconnects:     file.NATS.MaxReconnects,
			ReconnectInterval: file.ReconnectInterval(),
		}, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without forwarding")
		} else {
			defer nc.Close()
			cfg.OnPacket = forward.New(nc, file.SubjectPrefix(), log.Logger).OnPacket
			log.Info().Str("url", url).Str("prefix", file.SubjectPrefix()).Msg("Forwarding packets to NATS")
		}
	}

	session, err := asfs.NewSession(device, cfg)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := file.Status.Listen
	if *listenAddr != "" {
		addr = *listenAddr
	}
	if addr != "" {
		srv := status.NewServer(session, log.Logger)
		go func() {
			if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// subscribe before Start so the first CAD interrupt is not missed
	events := device.Events(ctx)

	if err := session.Start(sf, mode); err != nil {
		return fmt.Errorf("failed to start search: %w", err)
	}

	log.Info().
		Stringer("sf", sf).
		Stringer("mode", mode).
		Str("session", session.ID().String()).
		Msg("Search started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	err = asfs.NewDispatcher(session).Run(ctx, events)

	snap := session.Snapshot()
	log.Info().
		Uint64("cad_attempts", snap.Stats.CadAttempts).
		Uint64("detections", snap.Stats.Detections).
		Uint64("packets", snap.Stats.Packets).
		Uint64("sf_resets", snap.Stats.SFResets).
		Msg("Search stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig reads -config, else the per-device file, else the defaults
func loadConfig(serial string) (*config.File, error) {
	if *configPath != "" {
		return config.LoadFromFile(*configPath)
	}

	path := config.GetConfigPath(serial)
	file, err := config.LoadFromFile(path)
	if err == nil {
		log.Info().Str("path", path).Msg("Loaded device configuration")
		return file, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	log.Info().Msg("No device configuration, using defaults")
	return config.DefaultFile(), nil
}

// startParams applies -sf and -mode over the configuration
func startParams(file *config.File) (radio.SpreadingFactor, radio.CadExitMode, error) {
	sf, mode := file.StartParams()

	if *startSF != "" {
		if err := sf.UnmarshalText([]byte(*startSF)); err != nil {
			return 0, 0, err
		}
	}
	if *exitMode != "" {
		m, err := radio.ParseCadExitMode(*exitMode)
		if err != nil {
			return 0, 0, err
		}
		mode = m
	}

	return sf, mode, nil
}
