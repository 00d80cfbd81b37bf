package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/posecast/internal/config"
	"github.com/danmuck/posecast/internal/logging"
	"github.com/danmuck/posecast/internal/observability"
	"github.com/danmuck/posecast/internal/peer"
	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to peer config.toml (defaults when empty)")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "peerctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadPeerConfig(configPath)
	if err != nil {
		return err
	}
	observability.InitLogger("peerctl", cfg.Runtime.Client.PeerID)

	var loaded config.LoadedCatalog
	if cfg.CatalogPath != "" {
		loaded, err = config.LoadCatalog(cfg.CatalogPath)
	} else {
		loaded, err = builtinCatalog()
	}
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if len(loaded.GenericFallbacks) > 0 {
		cfg.Runtime.Replication.Applier.GenericFallbacks = loaded.GenericFallbacks
	}

	world := pose.NewMemoryWorld()
	world.AutoSpawn = true
	runtime, err := peer.NewRuntime(cfg.Runtime, world, loaded.Catalog)
	if err != nil {
		return err
	}
	driver := newScriptDriver(world, cfg.Runtime.Client.ActorID, loaded.Catalog, cfg.Script, cfg.HoldTicks)
	runtime.OnTick(driver.Tick)
	runtime.Subscribe(func(msg session.Replication) {
		log.Debug().
			Str("actor", msg.Actor.String()).
			Str("origin", msg.OriginPeer).
			Bool("stop", msg.IsStop()).
			Msg("peerctl received replication")
	})
	runtime.OnLeave(world.Despawn)
	runtime.OnSessionEnd(func(purged int) {
		despawned := despawnRemoteActors(world, cfg.Runtime.Client.ActorID)
		log.Info().
			Int("purged", purged).
			Int("despawned", despawned).
			Msg("peerctl session ended")
	})

	log.Info().
		Str("relay", cfg.Runtime.Client.Address).
		Str("actor", cfg.Runtime.Client.ActorID.String()).
		Int("catalog_size", loaded.Catalog.Len()).
		Msg("peerctl starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runtime.Run(ctx)
}
