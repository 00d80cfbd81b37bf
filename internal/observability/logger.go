package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the global logger with the app and node name.
func InitLogger(app, node string) zerolog.Logger {
	logger := log.Logger.With().Str("app", app).Str("node", node).Logger()
	log.Logger = logger
	return logger
}
