// Command sacn-send transmits E1.31 data packets, for exercising a receiver
// without a lighting console.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/coreman2200/funtimes-sacn/internal/channel"
	"github.com/coreman2200/funtimes-sacn/internal/sacn"
	"github.com/coreman2200/funtimes-sacn/internal/testpattern"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("sacn-send", pflag.ContinueOnError)
	var (
		target    = fs.String("target", "", "unicast host; empty sends to the universe's multicast group")
		universe  = fs.IntP("universe", "u", 1, "universe 1..63999")
		port      = fs.IntP("port", "p", sacn.DefaultPort, "destination UDP port")
		priority  = fs.Uint8("priority", sacn.DefaultPriority, "source priority 0..200")
		name      = fs.String("name", "sacn-send", "source name")
		cidFlag   = fs.String("cid", "", "component id, random when empty")
		pattern   = fs.String("pattern", "solid", "solid | index_sweep | rgb_channels")
		chanType  = fs.String("type", "RGB", "channel type per pixel: MONO | RGB | RGBW | RGBWW")
		color     = fs.String("color", "ff0000", "hex slot values of one pixel for the solid pattern")
		pixels    = fs.Int("pixels", 1, "pixels written")
		start     = fs.Int("start", 1, "first slot (1-based) written")
		rate      = fs.Float64("rate", 30, "packets per second")
		count     = fs.Int("count", 0, "packets to send, 0 runs until interrupted")
		preview   = fs.Bool("preview", false, "set the preview option")
		terminate = fs.Bool("terminate", true, "send three stream-terminated packets on exit")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := sacn.ValidateUniverse(*universe); err != nil {
		return err
	}
	if *priority > sacn.MaxPriority {
		return sacn.Configf("priority", *priority, "must be at most %d", sacn.MaxPriority)
	}
	cid := uuid.New()
	if *cidFlag != "" {
		var err error
		if cid, err = uuid.Parse(*cidFlag); err != nil {
			return err
		}
	}
	kind, err := testpattern.ParseKind(*pattern)
	if err != nil {
		return err
	}
	ct, err := channel.ParseType(*chanType)
	if err != nil {
		return err
	}
	col, err := hex.DecodeString(*color)
	if err != nil {
		return fmt.Errorf("--color: %w", err)
	}
	plan := testpattern.Plan{Kind: kind, Start: *start, Type: ct, Pixels: *pixels, Color: col}
	runner, err := testpattern.NewRunner(plan)
	if err != nil {
		return err
	}
	data := make([]byte, runner.Len())

	host := *target
	if host == "" {
		host = sacn.MulticastGroup(uint16(*universe)).String()
	}
	conn, err := net.Dial("udp4", net.JoinHostPort(host, strconv.Itoa(*port)))
	if err != nil {
		return err
	}
	defer conn.Close()

	p := sacn.Packet{
		CID:        cid,
		SourceName: *name,
		Priority:   *priority,
		Universe:   uint16(*universe),
		Data:       data,
	}
	if *preview {
		p.Options |= sacn.OptionPreview
	}
	send := func() error {
		if !runner.Step(data) {
			runner, _ = testpattern.NewRunner(plan)
			runner.Step(data)
		}
		b, err := p.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := conn.Write(b); err != nil {
			return err
		}
		p.Sequence++
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Info().Str("to", conn.RemoteAddr().String()).Int("universe", *universe).Str("cid", cid.String()).Str("pattern", string(kind)).Int("slots", len(data)).Msg("sending")

	tick := time.NewTicker(time.Duration(float64(time.Second) / max(*rate, 0.1)))
	defer tick.Stop()
	sent := 0
loop:
	for *count == 0 || sent < *count {
		if err := send(); err != nil {
			return err
		}
		sent++
		select {
		case <-ctx.Done():
			break loop
		case <-tick.C:
		}
	}

	if *terminate {
		p.Options |= sacn.OptionTerminated
		for i := 0; i < 3; i++ {
			if err := send(); err != nil {
				return err
			}
		}
	}
	log.Info().Int("packets", sent).Msg("done")
	return nil
}
