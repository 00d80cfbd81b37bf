package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// RelayFile is the on-disk shape of relayctl's config.toml.
type RelayFile struct {
	ID                string `toml:"id"`
	Addr              string `toml:"addr"`
	AdminListenAddr   string `toml:"admin_listen_addr"`
	QueueDepth        int    `toml:"queue_depth"`
	HandshakeTimeout  string `toml:"handshake_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	SessionDeadAfter  string `toml:"session_dead_after"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	JoinToken         string `toml:"join_token"`
}

// PeerFile is the on-disk shape of peerctl's config.toml.
type PeerFile struct {
	RelayAddress       string   `toml:"relay_address"`
	PeerID             string   `toml:"peer_id"`
	JoinToken          string   `toml:"join_token"`
	ActorID            string   `toml:"actor_id"`
	CatalogPath        string   `toml:"catalog_path"`
	TickInterval       string   `toml:"tick_interval"`
	HeartbeatInterval  string   `toml:"heartbeat_interval"`
	MaxConnectAttempts int      `toml:"max_connect_attempts"`
	PollEvery          uint64   `toml:"poll_every"`
	DriftThreshold     uint32   `toml:"drift_threshold"`
	PlaceholderTTL     uint64   `toml:"placeholder_ttl"`
	Script             []string `toml:"script"`
	HoldTicks          uint64   `toml:"hold_ticks"`
}

// ValidateFile checks path against the shape for kind. Relay and peer files
// are decoded strictly so misspelled keys are reported; catalogs are fully
// built.
func ValidateFile(kind, path string) error {
	switch normalizeKind(kind) {
	case KindRelay:
		return decodeStrict(path, &RelayFile{})
	case KindPeer:
		return decodeStrict(path, &PeerFile{})
	case KindCatalog:
		_, err := LoadCatalog(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

func decodeStrict(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config parse failed (%s): %s", path, strings.TrimSpace(strict.String()))
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
