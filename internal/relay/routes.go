package relay

import (
	"net/http"
	"time"

	"github.com/danmuck/posecast/internal/observability"
	"github.com/danmuck/posecast/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peers are game clients; no origin policy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Router builds the admin HTTP surface and the WebSocket peer transport.
func (s *Service) Router() *gin.Engine {
	observability.RegisterMetrics()
	router := gin.New()
	router.Use(
		gin.Recovery(),
		observability.RequestLogger(log.Logger),
		observability.RequestMetricsMiddleware(s.cfg.RelayID),
	)
	started := time.Now()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"relay_id":  s.cfg.RelayID,
			"uptime":    time.Since(started).String(),
			"peers":     s.hub.Len(),
			"component": "relay",
		})
	})
	router.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"peers": s.Peers()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET(session.WebSocketPath, s.handleWebSocket)
	return router
}

func (s *Service) handleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("remote", c.Request.RemoteAddr).Err(err).Msg("relay.handleWebSocket upgrade failed")
		return
	}
	conn := session.NewWebSocketConn(ws)
	s.trackConn(conn)
	s.handleConn(conn, TransportWebSocket)
}
