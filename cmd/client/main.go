package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/adapter/driven/media/devices"
	"github.com/Wyydra/yacall/internal/adapter/driven/media/pion"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const dialWait = 10 * time.Second

func main() {
	fs := pflag.NewFlagSet("client", pflag.ExitOnError)
	config.ClientFlags(fs)
	_ = fs.Parse(os.Args[1:])

	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	cfg, err := config.LoadClient(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	zerolog.SetGlobalLevel(config.Level(cfg.LogLevel))
	self := domain.UserID(cfg.UserID)

	capture, err := devices.NewCapture(devices.Config{
		MaxWidth:     cfg.VideoMaxWidth,
		MaxHeight:    cfg.VideoMaxHeight,
		VideoBitrate: cfg.VideoBitrate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up capture")
	}
	factory, err := pion.NewFactory(pion.Config{
		ICEServers:          cfg.ICEServers,
		DisconnectedTimeout: cfg.ICEDisconnectedTimeout,
		FailedTimeout:       cfg.ICEFailedTimeout,
		KeepaliveInterval:   cfg.ICEKeepalive,
		IncludeLoopback:     cfg.ICELoopback,
	}, capture.RegisterCodecs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up peer connections")
	}

	client := ws.NewClient(ws.ClientConfig{URL: cfg.RelayURL, UserID: self})
	calls := service.NewCallService(self, client, devices.NewSource(capture), factory,
		service.WithRingTimeout(cfg.RingTimeout),
		service.WithDisconnectGrace(cfg.DisconnectGrace),
		service.WithSendRetryDelay(cfg.SendRetryDelay),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the relay link outlives the call service so a final hangup still goes out
	linkCtx, closeLink := context.WithCancel(context.Background())
	defer closeLink()

	updates, unsubscribe := calls.Subscribe()
	defer unsubscribe()
	unwatchEvents := client.SubscribeEvents(func(ev domain.Event) {
		log.Info().
			Str("type", string(ev.Type)).
			Str("room_id", ev.RoomID.String()).
			Str("from", ev.From.String()).
			Str("content", ev.Content).
			Msg("Event")
	})
	defer unwatchEvents()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(linkCtx)
	})
	g.Go(func() error {
		defer closeLink()
		return calls.Run(ctx)
	})
	g.Go(func() error {
		watch(ctx, calls, updates, cfg.AutoAccept)
		return nil
	})
	if cfg.Call != "" {
		g.Go(func() error {
			dial(ctx, client, calls, domain.UserID(cfg.Call), domain.MediaKind(cfg.Media))
			return nil
		})
	}

	cmds := &commands{self: self, calls: calls, events: client, media: domain.MediaKind(cfg.Media)}
	go cmds.run(ctx, os.Stdin)

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Client failed")
	}
	log.Info().Msg("Client exited")
}

// dial places the --call call once the relay link is up.
func dial(ctx context.Context, client *ws.Client, calls *service.CallService, remote domain.UserID, kind domain.MediaKind) {
	ctx, cancel := context.WithTimeout(ctx, dialWait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !client.Connected() {
		select {
		case <-ctx.Done():
			log.Error().Str("remote", remote.String()).Msg("Relay not reachable, call not placed")
			return
		case <-ticker.C:
		}
	}

	session, err := calls.StartCall(ctx, remote, kind)
	if err != nil {
		log.Error().Err(err).Str("remote", remote.String()).Msg("Failed to start call")
		return
	}
	log.Info().Str("call_id", session.ID.String()).Str("remote", remote.String()).Msg("Calling")
}
