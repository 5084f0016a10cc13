// Command sacn-dump prints sACN traffic from a capture file or a live
// socket, optionally recording what it sees.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/coreman2200/funtimes-sacn/internal/capture"
	"github.com/coreman2200/funtimes-sacn/internal/receiver"
	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("sacn-dump", pflag.ContinueOnError)
	var (
		file      = fs.StringP("file", "f", "", "read a CBOR capture instead of the network")
		out       = fs.StringP("out", "o", "", "append live datagrams to this capture file")
		universes = fs.IntSliceP("universe", "u", []int{1}, "universes to show (multicast groups joined)")
		modeFlag  = fs.String("mode", "MULTICAST", "UNICAST | MULTICAST (MULTICAST also joins the universe groups)")
		port      = fs.IntP("port", "p", sacn.DefaultPort, "UDP port")
		iface     = fs.String("iface", "", "interface for multicast membership")
		slots     = fs.Int("slots", 16, "slots printed per packet")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"})

	want := map[uint16]bool{}
	for _, u := range *universes {
		if err := sacn.ValidateUniverse(u); err != nil {
			return err
		}
		want[uint16(u)] = true
	}
	d := dumper{want: want, slots: *slots}

	if *file != "" {
		r, err := capture.Open(*file, capture.Filter{})
		if err != nil {
			return err
		}
		defer r.Close()
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			d.print(rec.Timestamp, rec.Source, rec.Data)
		}
	}

	mode, err := sacn.ParseTransportMode(*modeFlag)
	if err != nil {
		return err
	}
	var tr receiver.Transport = receiver.UDP{Interface: *iface}
	if *out != "" {
		w, err := capture.Create(*out)
		if err != nil {
			return err
		}
		defer w.Close()
		tr = capture.Tap(tr, w, nil)
	}
	conn, err := tr.Listen(*port)
	if err != nil {
		return err
	}
	defer conn.Close()
	if mode == sacn.Multicast {
		for u := range want {
			if err := conn.JoinGroup(sacn.MulticastGroup(u)); err != nil {
				return err
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Info().Str("mode", mode.String()).Int("port", *port).Ints("universes", *universes).Msg("listening")
	buf := make([]byte, sacn.MaxPacketLen)
	for ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		from := ""
		if src != nil {
			from = src.String()
		}
		d.print(time.Now(), from, buf[:n])
	}
	return nil
}

type dumper struct {
	want  map[uint16]bool
	slots int
}

func (d dumper) print(at time.Time, src string, b []byte) {
	p, err := sacn.Parse(b)
	if err != nil {
		log.Warn().Err(err).Str("src", src).Int("len", len(b)).Msg("malformed")
		return
	}
	if p.Kind == sacn.KindData && !d.want[p.Universe] {
		return
	}
	ev := log.Info().Time("at", at).Str("src", src).Str("kind", p.Kind.String())
	switch p.Kind {
	case sacn.KindData:
		ev.Uint16("universe", p.Universe).
			Uint8("seq", p.Sequence).
			Uint8("prio", p.Priority).
			Str("name", p.SourceName).
			Bool("preview", p.Preview()).
			Bool("terminated", p.Terminated()).
			Int("slots", len(p.Data)).
			Str("data", hexSlots(p.Data, d.slots))
	case sacn.KindSync:
		ev.Uint16("sync", p.SyncAddress).Uint8("seq", p.Sequence)
	}
	ev.Str("cid", p.CID.String()).Send()
}

func hexSlots(b []byte, n int) string {
	var sb strings.Builder
	for i, v := range b {
		if i == n {
			sb.WriteString(" …")
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", v)
	}
	return sb.String()
}
