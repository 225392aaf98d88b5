package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/manpreetbhatti/inkwell/internal/canvas"
	"github.com/manpreetbhatti/inkwell/internal/channel"
	"github.com/manpreetbhatti/inkwell/internal/config"
	"github.com/manpreetbhatti/inkwell/internal/discovery"
	"github.com/manpreetbhatti/inkwell/internal/reconcile"
)

const Version = "0.1.0"

var (
	_ reconcile.Surface = (*canvas.Canvas)(nil)
	_ reconcile.Sender  = (*channel.Client)(nil)
)

func main() {
	usage := `Inkwell peer.

Joins a room on a relay and plays a drawing script against the shared surface.
The relay is found over mDNS when --relay is not given.

Script commands, one per line:
    draw x,y [x,y ...]    draw a stroke through the points
    undo                  remove the last own stroke
    clear                 remove every own stroke
    send                  broadcast the own strokes
    wait <duration>       pause, e.g. 500ms
    png <path>            snapshot the surface as PNG
    pdf <path>            snapshot the surface as PDF
    status                print engine state as JSON

Usage:
    peer [--relay=<url>] [--room=<room>] [--script=<path>]
        [--width=<width>] [--height=<height>]
        [--discover=<timeout>] [--linger=<duration>] [--verbosity=<level>]
    peer -h | --help
    peer --version

Options:
    -h --help               Show this screen.
    --version               Show version.
    --relay=<url>           Relay websocket url, e.g. ws://localhost:8080/ws
    --room=<room>           Room to join.
    --script=<path>         Script file, - for stdin [default: -].
    --width=<width>         Surface width [default: 800].
    --height=<height>       Surface height [default: 600].
    --discover=<timeout>    How long to browse for relays [default: 3s].
    --linger=<duration>     Keep syncing after the script ends [default: 1s].
    --verbosity=<level>     Log verbosity [default: 0].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	level, _ := opts.String("--verbosity")
	flag.Set("logtostderr", "true")
	flag.Set("v", level)
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	if err := run(opts); err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run(opts docopt.Opts) error {
	cfg := config.LoadPeer()
	if relay, ok := opts["--relay"].(string); ok {
		cfg.RelayURL = relay
	}
	if room, ok := opts["--room"].(string); ok {
		cfg.Room = room
	}

	width, err := opts.Int("--width")
	if err != nil {
		return fmt.Errorf("--width: %w", err)
	}
	height, err := opts.Int("--height")
	if err != nil {
		return fmt.Errorf("--height: %w", err)
	}

	lingerOpt, _ := opts.String("--linger")
	linger, err := time.ParseDuration(lingerOpt)
	if err != nil {
		return fmt.Errorf("--linger: %w", err)
	}

	commands, err := readScript(opts)
	if err != nil {
		return err
	}

	if cfg.RelayURL == "" {
		timeout, _ := opts.String("--discover")
		cfg.RelayURL, err = discover(timeout)
		if err != nil {
			return err
		}
	}
	target, err := roomURL(cfg.RelayURL, cfg.Room)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	settings := channel.DefaultSettings(target)
	settings.ReconnectInterval = cfg.ReconnectInterval
	settings.MaxReconnects = cfg.ReconnectAttempts
	client := channel.New(settings)
	defer client.Close()

	surface := canvas.New(width, height)
	engine := reconcile.NewEngine(surface, client)
	loop := reconcile.NewLoop(engine)

	client.OnReconnect(func() {
		err := loop.Do(ctx, func(e *reconcile.Engine) error {
			e.Rebind()
			return nil
		})
		if err != nil {
			glog.Warningf("rebind after reconnect: %v", err)
		}
	})

	go func() {
		err := client.Run(ctx)
		if errors.Is(err, channel.ErrReconnectExhausted) {
			glog.Errorf("giving up on relay: %v", err)
			cancel()
		}
	}()
	go loop.Run(ctx, client.Messages())

	glog.Infof("Joined room %s at %s", cfg.Room, cfg.RelayURL)
	if err := NewSession(loop, surface, os.Stdout).Run(ctx, commands); err != nil {
		return err
	}

	// let queued frames reach the relay and late echoes come back
	select {
	case <-time.After(linger):
	case <-ctx.Done():
	}
	return nil
}

func readScript(opts docopt.Opts) ([]Command, error) {
	path, _ := opts.String("--script")
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return ParseScript(r)
}

func discover(timeout string) (string, error) {
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return "", fmt.Errorf("--discover: %w", err)
	}
	glog.Infof("Browsing for relays for %v", d)
	relays, err := discovery.Lookup(d)
	if err != nil {
		return "", err
	}
	if len(relays) == 0 {
		return "", errors.New("no relay found on the local network, pass --relay")
	}
	return relays[0], nil
}

// Adds the room to a relay websocket url
func roomURL(relay, room string) (string, error) {
	u, err := url.Parse(relay)
	if err != nil {
		return "", fmt.Errorf("relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("relay url must be ws:// or wss://, got %s", strconv.Quote(relay))
	}
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
