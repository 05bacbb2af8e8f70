package core

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewDirectorRouter constructs the Gin engine for the traffic director:
// its own health/status/metrics endpoints plus a catch-all that forwards
// everything else to the next healthy backend.
func NewDirectorRouter(cfg DirectorConfig, pool *BackendPool) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	r.GET("/nginx-health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.GET("/lb/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, CollectDirectorStatus(pool, startedAt))
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	proxies := buildProxies(cfg, pool)

	r.NoRoute(func(c *gin.Context) {
		backend, err := pool.Next()
		if err != nil {
			// Empty healthy set: fail fast without contacting any replica.
			respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "no healthy backend available")
			return
		}
		directorForwardedTotal.WithLabelValues(backend.URL.Host).Inc()
		proxies[backend].ServeHTTP(c.Writer, c.Request)
	})

	return r
}

// buildProxies prepares one reverse proxy per backend so the per-request
// path only selects and serves.
func buildProxies(cfg DirectorConfig, pool *BackendPool) map[*Backend]*httputil.ReverseProxy {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		ResponseHeaderTimeout: cfg.ForwardTimeout,
		MaxIdleConnsPerHost:   32,
	}

	proxies := make(map[*Backend]*httputil.ReverseProxy, len(pool.Backends()))
	for _, backend := range pool.Backends() {
		backend := backend
		proxies[backend] = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(backend.URL)
				pr.SetXForwarded()
				if host, _, err := net.SplitHostPort(pr.In.RemoteAddr); err == nil {
					pr.Out.Header.Set("X-Real-IP", host)
				}
			},
			Transport: transport,
			ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
				if errors.Is(err, context.Canceled) {
					// Client went away; not the backend's fault.
					return
				}
				log.Printf("forward to %s failed: %v", backend.URL, err)
				directorForwardErrors.WithLabelValues(backend.URL.Host).Inc()
				pool.MarkForwardFailure(backend)
				writeJSONError(w, http.StatusBadGateway, "BAD_UPSTREAM", "upstream request failed")
			},
		}
	}
	return proxies
}

// writeJSONError mirrors respondError for handlers outside a gin context.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	body, err := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	if err != nil {
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
