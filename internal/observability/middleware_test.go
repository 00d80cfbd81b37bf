package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/posecast/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRequestLoggerLevelsByStatusAndRoute(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)
	router := gin.New()
	router.Use(RequestLogger(logger), RequestMetricsMiddleware("relay-test"))
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/peers", func(c *gin.Context) { c.String(http.StatusOK, "[]") })

	for _, path := range []string{"/health", "/peers", "/missing"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := buf.String()
	if strings.Contains(out, `"path":"/health"`) {
		t.Fatalf("health check should log below info: %s", out)
	}
	if !strings.Contains(out, `"path":"/peers"`) {
		t.Fatalf("expected /peers request line: %s", out)
	}
	if !strings.Contains(out, `"path":"unmatched"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected warn line for unmatched route: %s", out)
	}
}
