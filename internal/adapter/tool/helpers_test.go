package tool

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"voicebot/internal/infra/config"
	"voicebot/internal/infra/logger"
)

// lookupServer fakes both public data sources and counts hits.
type lookupServer struct {
	*httptest.Server
	hits     atomic.Int32
	lastPath atomic.Value
	lastQry  atomic.Value
}

func newLookupServer(t *testing.T, status int, body string) *lookupServer {
	t.Helper()
	ls := &lookupServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ls.hits.Add(1)
		ls.lastPath.Store(r.URL.Path)
		ls.lastQry.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ls.Close)
	return ls
}

func toolsConfigFor(baseURL string) config.ToolsConfig {
	cfg := config.Defaults().Tools
	cfg.Timeout = 2 * time.Second
	cfg.Weather.BaseURL = baseURL + "/v1/forecast"
	cfg.Exchange.BaseURL = baseURL + "/v4/latest"
	return cfg
}

func newTestWeather(baseURL string, limiter *RateLimiter) *WeatherTool {
	return NewWeatherTool(toolsConfigFor(baseURL), http.DefaultClient, limiter, logger.Discard())
}

func newTestExchange(baseURL string, limiter *RateLimiter) *ExchangeRateTool {
	return NewExchangeRateTool(toolsConfigFor(baseURL), http.DefaultClient, limiter, logger.Discard())
}
