// Command toxpeer sends or receives files and places audio calls over a
// websocket peer channel.
//
// One side listens and the other connects:
//
//	toxpeer -listen :8080 -out ./inbox -answer
//	toxpeer -connect ws://localhost:8080/peer -send report.pdf -call
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

	"github.com/opd-ai/toxpeer"
	"github.com/opd-ai/toxpeer/av"
	"github.com/opd-ai/toxpeer/av/audio"
	"github.com/opd-ai/toxpeer/channel"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := ParseConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Error("toxpeer failed")
		os.Exit(1)
	}
}

// openChannel dials the peer or waits for it to connect.
func openChannel(ctx context.Context, cfg Config) (channel.Channel, error) {
	peer := channel.PeerID(cfg.Peer)
	if cfg.Connect != "" {
		return channel.DialWS(ctx, cfg.Connect, peer)
	}

	accepted := make(chan *channel.WSChannel, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/peer", func(w http.ResponseWriter, r *http.Request) {
		ch, err := channel.AcceptWS(w, r, peer)
		if err != nil {
			logrus.WithError(err).Warn("Failed to accept peer")
			return
		}
		select {
		case accepted <- ch:
		default:
			_ = ch.Close()
		}
	})

	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("Listener failed")
		}
	}()
	logrus.WithField("addr", cfg.Listen).Info("Waiting for peer")

	select {
	case ch := <-accepted:
		_ = srv.Shutdown(context.Background())
		return ch, nil
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		return nil, ctx.Err()
	}
}

func nodeOptions(cfg Config, devices av.DeviceProvider) *toxpeer.Options {
	opts := toxpeer.NewOptions()
	opts.Devices = devices
	opts.PumpInterval = time.Duration(opts.CallSettings.FrameDurationMs) * time.Millisecond
	opts.CallSettings.MaxWidth, opts.CallSettings.MaxHeight = 160, 120
	if cfg.Opus {
		opts.AudioEncoder = cannedOpus{}
		opts.AudioDecoder = audio.NewOpusDecoder()
	}
	return opts
}

func run(ctx context.Context, cfg Config) error {
	ch, err := openChannel(ctx, cfg)
	if err != nil {
		return err
	}

	devices := &syntheticDevices{}
	node, err := toxpeer.New(ch, nodeOptions(cfg, devices))
	if err != nil {
		_ = ch.Close()
		return err
	}
	defer node.Kill()

	peer := channel.PeerID(cfg.Peer)
	newReceiver(node, cfg.OutDir)
	calls := newCallDriver(node, cfg)

	// The engines learn the peer is connected during the first tick.
	if err := node.Iterate(); err != nil {
		return err
	}

	var sending <-chan error
	if cfg.Send != "" {
		o, err := sendFile(node, peer, cfg.Send)
		if err != nil {
			return err
		}
		sending = o.done
	}
	if cfg.Call {
		if err := calls.place(peer); err != nil {
			return err
		}
	}

	runErr := make(chan error, 1)
	go func() { runErr <- node.Run(ctx) }()

	pending := 0
	if sending != nil {
		pending++
	}
	if cfg.Call {
		pending++
	}
	if pending == 0 {
		return <-runErr
	}

	for pending > 0 {
		select {
		case err := <-sending:
			sending = nil
			pending--
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			logrus.WithField("path", cfg.Send).Info("File sent")
		case <-calls.ended:
			pending--
			logrus.WithFields(logrus.Fields{
				"function":     "run",
				"frames_heard": devices.played.Load(),
				"frames_shown": devices.displayed.Load(),
				"peak_level":   devices.peak.Load(),
			}).Info("Call finished")
		case err := <-runErr:
			return err
		}
	}
	return nil
}
