package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/posecast/internal/logging"
	"github.com/danmuck/posecast/internal/observability"
	"github.com/danmuck/posecast/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "path to relay config.toml (defaults when empty)")
	flag.Parse()

	logging.ConfigureRuntime()
	cfg := relay.DefaultServiceConfig()
	if path := strings.TrimSpace(*configPath); path != "" {
		loaded, err := loadServiceConfig(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	observability.InitLogger("relayctl", cfg.RelayID)

	svc := relay.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
		os.Exit(1)
	}
}
