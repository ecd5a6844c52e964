package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/aymanbagabas/go-pty"
	"github.com/jaracil/smsgate/sim"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
)

type options struct {
	Echo   bool `short:"e" long:"echo" description:"Start with command echo enabled"`
	Direct bool `long:"direct" description:"Start in text mode with direct +CMT delivery"`
	CSQ    int  `long:"csq" default:"20" description:"Signal quality reported by AT+CSQ"`
	Debug  bool `short:"d" long:"debug" description:"Enable debug logging"`
}

// parseInject splits "<sender> <body>" as typed on stdin.
func parseInject(line string) (sender, body string, ok bool) {
	line = strings.TrimSpace(line)
	sender, body, ok = strings.Cut(line, " ")
	if !ok || sender == "" {
		return "", "", false
	}
	return sender, strings.TrimSpace(body), true
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	tty, err := pty.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("create pty")
	}
	defer tty.Close()

	m, err := sim.NewModem(&sim.ModemConfig{
		Id:             "modemsim",
		TTY:            tty,
		Echo:           opts.Echo,
		DirectDelivery: opts.Direct,
		SignalQuality:  opts.CSQ,
		Logger:         &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create modem")
	}
	defer m.CloseSync()

	fmt.Printf("tty path: %s\n", tty.Name())
	fmt.Println("type \"<sender> <message>\" to push an incoming SMS")
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		sender, body, ok := parseInject(sc.Text())
		if !ok {
			fmt.Println("usage: <sender> <message>")
			continue
		}
		if err := m.InjectMessageSync(sender, body); err != nil {
			logger.Error().Err(err).Msg("inject message")
			continue
		}
		logger.Info().Str("sender", sender).Msg("message pushed")
	}
}
