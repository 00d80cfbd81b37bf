package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/posecast/internal/auth"
	"github.com/danmuck/posecast/internal/config"
	"github.com/danmuck/posecast/internal/relay"
)

func loadServiceConfig(path string) (relay.ServiceConfig, error) {
	cfg := relay.DefaultServiceConfig()

	var raw config.RelayFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return relay.ServiceConfig{}, fmt.Errorf("load relay config: %w", err)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.RelayID = id
		}
	}
	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("queue_depth") {
		if raw.QueueDepth <= 0 {
			return relay.ServiceConfig{}, fmt.Errorf("load relay config: queue_depth must be > 0")
		}
		cfg.QueueDepth = raw.QueueDepth
	}

	if meta.IsDefined("join_token") {
		if token := strings.TrimSpace(raw.JoinToken); token != "" {
			cfg.Auth = auth.StaticToken{Token: token}
		}
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"session_dead_after", raw.SessionDeadAfter, &cfg.Session.SessionDeadAfter},
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.Session.HeartbeatInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return relay.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v <= 0 {
			return relay.ServiceConfig{}, fmt.Errorf("parse %s: must be > 0", d.key)
		}
		*d.dst = v
	}
	if cfg.Session.SessionDeadAfter <= cfg.Session.HeartbeatInterval {
		return relay.ServiceConfig{}, fmt.Errorf(
			"load relay config: session_dead_after (%s) must exceed heartbeat_interval (%s)",
			cfg.Session.SessionDeadAfter,
			cfg.Session.HeartbeatInterval,
		)
	}

	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}
