package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/posecast/internal/config"
	"github.com/danmuck/posecast/internal/peer"
	"github.com/danmuck/posecast/internal/pose"
	"github.com/google/uuid"
)

type peerConfig struct {
	Runtime     peer.RuntimeConfig
	CatalogPath string
	Script      []pose.Identifier
	HoldTicks   uint64
}

func defaultPeerConfig() peerConfig {
	cfg := peerConfig{
		Runtime:   peer.DefaultRuntimeConfig(),
		Script:    []pose.Identifier{pose.MustIdentifier("core:emote/wave"), pose.MustIdentifier("core:idle")},
		HoldTicks: 40,
	}
	cfg.Runtime.Client.ActorID = pose.NewActorID()
	cfg.Runtime.Client.PeerID = "peer-" + uuid.NewString()[:8]
	return cfg
}

func loadPeerConfig(path string) (peerConfig, error) {
	cfg := defaultPeerConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw config.PeerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return peerConfig{}, fmt.Errorf("load peer config: %w", err)
	}

	if meta.IsDefined("relay_address") {
		addr := strings.TrimSpace(raw.RelayAddress)
		if addr == "" {
			return peerConfig{}, fmt.Errorf("load peer config: relay_address is empty")
		}
		cfg.Runtime.Client.Address = addr
	}
	if meta.IsDefined("peer_id") {
		if id := strings.TrimSpace(raw.PeerID); id != "" {
			cfg.Runtime.Client.PeerID = id
		}
	}
	if meta.IsDefined("join_token") {
		cfg.Runtime.Client.Token = strings.TrimSpace(raw.JoinToken)
	}
	if meta.IsDefined("actor_id") {
		if rawID := strings.TrimSpace(raw.ActorID); rawID != "" {
			actor, err := pose.ParseActorID(rawID)
			if err != nil {
				return peerConfig{}, fmt.Errorf("parse actor_id: %w", err)
			}
			cfg.Runtime.Client.ActorID = actor
		}
	}
	if meta.IsDefined("catalog_path") {
		cfg.CatalogPath = strings.TrimSpace(raw.CatalogPath)
	}
	if meta.IsDefined("tick_interval") {
		d, err := parsePositiveDuration("tick_interval", raw.TickInterval)
		if err != nil {
			return peerConfig{}, err
		}
		cfg.Runtime.TickInterval = d
	}
	if meta.IsDefined("heartbeat_interval") {
		d, err := parsePositiveDuration("heartbeat_interval", raw.HeartbeatInterval)
		if err != nil {
			return peerConfig{}, err
		}
		cfg.Runtime.Client.Session.HeartbeatInterval = d
	}
	if meta.IsDefined("max_connect_attempts") {
		if raw.MaxConnectAttempts < 0 {
			return peerConfig{}, fmt.Errorf("load peer config: max_connect_attempts must be >= 0")
		}
		cfg.Runtime.Client.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("poll_every") {
		if raw.PollEvery == 0 {
			return peerConfig{}, fmt.Errorf("load peer config: poll_every must be > 0")
		}
		cfg.Runtime.Replication.Observer.PollEvery = raw.PollEvery
	}
	if meta.IsDefined("drift_threshold") {
		cfg.Runtime.Replication.Observer.DriftThreshold = raw.DriftThreshold
	}
	if meta.IsDefined("placeholder_ttl") {
		if raw.PlaceholderTTL == 0 {
			return peerConfig{}, fmt.Errorf("load peer config: placeholder_ttl must be > 0")
		}
		cfg.Runtime.Replication.Applier.PlaceholderTTL = raw.PlaceholderTTL
	}
	if meta.IsDefined("script") {
		script := make([]pose.Identifier, 0, len(raw.Script))
		for i, entry := range raw.Script {
			id, err := pose.ParseIdentifier(entry)
			if err != nil {
				return peerConfig{}, fmt.Errorf("script[%d] invalid: %w", i, err)
			}
			script = append(script, id)
		}
		cfg.Script = script
	}
	if meta.IsDefined("hold_ticks") {
		if raw.HoldTicks == 0 {
			return peerConfig{}, fmt.Errorf("load peer config: hold_ticks must be > 0")
		}
		cfg.HoldTicks = raw.HoldTicks
	}
	return cfg, nil
}

func parsePositiveDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", key)
	}
	return d, nil
}
