package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaracil/smsgate"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

func newLogger(debug bool) zerolog.Logger {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func openPort(name string, baud int) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	// Keep the reader task responsive to Close.
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	logger := newLogger(opts.Debug)

	auth, err := opts.authorization()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration")
	}

	port, err := openPort(opts.Port, opts.Baud)
	if err != nil {
		logger.Fatal().Err(err).Str("port", opts.Port).Msg("open modem port")
	}

	var relay smsgate.Relay = smsgate.NewLogRelay(logger)
	if opts.RelayPath != "" {
		relay = &smsgate.FileRelay{Path: opts.RelayPath}
	}

	metrics := smsgate.NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		logger.Fatal().Err(err).Msg("register metrics")
	}

	ctl, err := smsgate.NewController(&smsgate.ControllerConfig{
		Transport:    port,
		Auth:         auth,
		Relay:        relay,
		Timeout:      opts.Timeout,
		Pulse:        opts.Pulse,
		NotifyPrefix: opts.NotifyPrefix,
		InitCommands: opts.initCommands(),
		Metrics:      metrics,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create controller")
	}
	defer ctl.Close()

	router := smsgate.NewRouter(ctl.Bridge(), logger)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: opts.Listen, Handler: router}
	go func() {
		logger.Info().Str("addr", opts.Listen).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctl.Init()
	logger.Info().Str("port", opts.Port).Msg("gateway running")
	err = ctl.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("main loop stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
