package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	KindRelay   = "relay"
	KindPeer    = "peer"
	KindCatalog = "catalog"
)

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

func Template(kind string) (string, error) {
	switch normalizeKind(kind) {
	case KindRelay:
		return relayTemplate, nil
	case KindPeer:
		return peerTemplate, nil
	case KindCatalog:
		return catalogTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const relayTemplate = `id = "relay.local"
addr = ":9400"
admin_listen_addr = ":9401"
queue_depth = 256
handshake_timeout = "5s"
write_timeout = "5s"
heartbeat_interval = "5s"
session_dead_after = "15s"
join_token = ""
`

const peerTemplate = `relay_address = "127.0.0.1:9400"
peer_id = "peer.local"
join_token = ""
actor_id = ""
catalog_path = ""
tick_interval = "50ms"
poll_every = 2
drift_threshold = 3
placeholder_ttl = 100
max_connect_attempts = 0
script = ["core:emote/wave", "core:idle"]
hold_ticks = 40
`

const catalogTemplate = `fallback_namespaces = ["core"]
generic_fallbacks = ["core:idle", "core:emote/wave"]

[[pose]]
id = "core:idle"
name = "Idle"
length = 80
loop = true

  [[pose.keyframe]]
  tick = 0
  bone = "body"
  rotation = [0.0, 0.0, 0.0]

[[pose]]
id = "core:emote/wave"
name = "Wave"
length = 30

  [[pose.keyframe]]
  tick = 15
  bone = "right_arm"
  rotation = [-150.0, 0.0, 20.0]
`
