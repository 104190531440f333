// Command mirror joins a match as a non-authoritative peer and logs every
// state it mirrors. With -seat it can also submit a deck and end turns.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/config"
	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/abilities"
	"github.com/mysticduel/duel-server/internal/game/rules"
	"github.com/mysticduel/duel-server/internal/netsync"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	url        = flag.String("url", "ws://localhost:8080/ws", "websocket endpoint of the authority")
	matchID    = flag.String("match", "", "match id to join")
	seat       = flag.String("seat", "", "seat to act for (host or guest); empty watches")
	deck       = flag.String("deck", "", "comma separated card names submitted on connect")
)

func main() {
	flag.Parse()
	if *matchID == "" {
		fmt.Fprintln(os.Stderr, "-match is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cat, err := catalog.LoadYAML(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal("failed to load card catalog", zap.Error(err))
	}
	factory := game.NewCardFactory(cat, abilities.NewResolver(logger), logger)
	mirror := netsync.NewMirror(*matchID, factory, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := netsync.Dial(ctx, netsync.ClientConfig{
		URL:             *url,
		MatchID:         *matchID,
		Seat:            rules.Seat(*seat),
		ConnectTimeout:  cfg.Server.ConnectTimeout,
		AckTimeout:      cfg.Server.AckTimeout,
		MaxMessageBytes: cfg.Server.WebSocket.MaxMessageBytes,
	}, mirror, logger,
		netsync.WithStateHandler(func(snap *game.MatchSnapshot, events []rules.Event) {
			fields := []zap.Field{
				zap.Uint64("seq", snap.Seq),
				zap.String("status", string(snap.Status)),
				zap.Int("turn", snap.Turn),
				zap.String("active", string(snap.Active)),
				zap.Int("events", len(events)),
			}
			for _, s := range snap.Sides {
				fields = append(fields, zap.Int(string(s.Seat)+"_health", s.Health))
			}
			logger.Info("state mirrored", fields...)
		}),
		netsync.WithPauseHandler(func(paused bool, reason string) {
			logger.Warn("pause state changed", zap.Bool("paused", paused), zap.String("reason", reason))
		}),
	)
	if err != nil {
		logger.Fatal("failed to join match", zap.Error(err))
	}
	defer client.Close()

	if *deck != "" && *seat != "" {
		if err := client.InitDeck(ctx, strings.Split(*deck, ",")); err != nil {
			logger.Error("deck rejected", zap.Error(err))
		}
	}

	if *seat != "" {
		go readCommands(ctx, client, logger)
	}

	select {
	case <-ctx.Done():
	case <-client.Done():
		logger.Warn("connection closed", zap.Error(client.Err()))
	}
}

// readCommands submits "end" and "resync" lines from stdin.
func readCommands(ctx context.Context, client *netsync.Client, logger *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var err error
		switch cmd := strings.TrimSpace(scanner.Text()); cmd {
		case "end":
			err = client.EndTurn(ctx)
		case "resync":
			err = client.RequestResync(ctx)
		case "":
			continue
		default:
			logger.Warn("unknown command", zap.String("command", cmd))
			continue
		}
		if err != nil {
			logger.Error("command failed", zap.Error(err))
		}
	}
}
