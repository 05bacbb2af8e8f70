package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// ErrNoHealthyBackend is returned when the healthy set is empty.
var ErrNoHealthyBackend = errors.New("no healthy backend available")

// DirectorConfig holds settings for the traffic director process.
// It is read from a YAML file with env fallbacks for container overrides.
type DirectorConfig struct {
	Listen           string
	Backends         []string
	ProbePath        string
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold int
	ForwardTimeout   time.Duration
	LogDir           string
}

// directorConfigFile is the on-disk YAML layout; durations are strings
// like "3s" and converted after parsing.
type directorConfigFile struct {
	Listen           string   `yaml:"listen"`
	Backends         []string `yaml:"backends"`
	ProbePath        string   `yaml:"probe_path"`
	ProbeInterval    string   `yaml:"probe_interval"`
	ProbeTimeout     string   `yaml:"probe_timeout"`
	FailureThreshold int      `yaml:"failure_threshold"`
	ForwardTimeout   string   `yaml:"forward_timeout"`
	LogDir           string   `yaml:"log_dir"`
}

// LoadDirectorConfig reads path (when non-empty) and applies env overrides
// and defaults. A missing file with BACKENDS set in the environment is fine.
func LoadDirectorConfig(path string) (DirectorConfig, error) {
	var cfg DirectorConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return DirectorConfig{}, fmt.Errorf("failed to read director config %s: %w", path, err)
		}
		var file directorConfigFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return DirectorConfig{}, fmt.Errorf("failed to parse director config %s: %w", path, err)
		}
		cfg.Listen = file.Listen
		cfg.Backends = file.Backends
		cfg.ProbePath = file.ProbePath
		cfg.FailureThreshold = file.FailureThreshold
		cfg.LogDir = file.LogDir
		for _, d := range []struct {
			raw string
			dst *time.Duration
		}{
			{file.ProbeInterval, &cfg.ProbeInterval},
			{file.ProbeTimeout, &cfg.ProbeTimeout},
			{file.ForwardTimeout, &cfg.ForwardTimeout},
		} {
			if d.raw == "" {
				continue
			}
			parsed, err := time.ParseDuration(d.raw)
			if err != nil {
				return DirectorConfig{}, fmt.Errorf("invalid duration %q in %s: %w", d.raw, path, err)
			}
			*d.dst = parsed
		}
	}

	if v := os.Getenv("DIRECTOR_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := parseCSV(os.Getenv("BACKENDS")); len(v) > 0 {
		cfg.Backends = v
	}

	cfg.Listen = firstNonEmpty(cfg.Listen, ":8080")
	cfg.ProbePath = firstNonEmpty(cfg.ProbePath, "/health/live")
	cfg.LogDir = firstNonEmpty(cfg.LogDir, "/var/log/sentiment")
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 3 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 2
	}
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = 30 * time.Second
	}

	if len(cfg.Backends) == 0 {
		return DirectorConfig{}, errors.New("no backends configured")
	}
	return cfg, nil
}

// Backend is one replica target. Health is written by the probe loop and the
// forward error path, and read by the routing hot path, so all fields are
// atomics rather than a request-blocking lock.
type Backend struct {
	URL *url.URL

	healthy          atomic.Bool
	consecutiveFails atomic.Int32
	lastCheck        atomic.Int64 // unix nano of the last probe or forward failure
}

// Healthy reports whether the backend is currently in rotation.
func (b *Backend) Healthy() bool {
	return b.healthy.Load()
}

// ConsecutiveFails returns the current consecutive failure count.
func (b *Backend) ConsecutiveFails() int32 {
	return b.consecutiveFails.Load()
}

// LastCheck returns the time of the most recent health observation.
func (b *Backend) LastCheck() time.Time {
	n := b.lastCheck.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// markSuccess restores the backend after a single successful probe.
func (b *Backend) markSuccess() {
	b.lastCheck.Store(time.Now().UnixNano())
	b.consecutiveFails.Store(0)
	if !b.healthy.Swap(true) {
		log.Printf("backend %s restored to rotation", b.URL)
	}
}

// markFailure counts one failed probe or forward. Reaching threshold
// consecutive failures evicts the backend from rotation.
func (b *Backend) markFailure(threshold int) {
	b.lastCheck.Store(time.Now().UnixNano())
	fails := b.consecutiveFails.Add(1)
	if int(fails) >= threshold {
		if b.healthy.Swap(false) {
			log.Printf("backend %s evicted after %d consecutive failures", b.URL, fails)
		}
	}
}

// BackendPool holds the ordered backend set and the round-robin cursor.
type BackendPool struct {
	backends         []*Backend
	cursor           atomic.Uint64
	failureThreshold int
}

// NewBackendPool parses backend URLs. All backends start healthy so traffic
// flows before the first probe round completes.
func NewBackendPool(rawURLs []string, failureThreshold int) (*BackendPool, error) {
	if len(rawURLs) == 0 {
		return nil, errors.New("no backends configured")
	}
	if failureThreshold <= 0 {
		failureThreshold = 2
	}
	pool := &BackendPool{failureThreshold: failureThreshold}
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid backend url %q", raw)
		}
		b := &Backend{URL: u}
		b.healthy.Store(true)
		pool.backends = append(pool.backends, b)
	}
	return pool, nil
}

// Backends returns the ordered backend set for status reporting.
func (p *BackendPool) Backends() []*Backend {
	return p.backends
}

// HealthyCount returns the number of backends currently in rotation.
func (p *BackendPool) HealthyCount() int {
	n := 0
	for _, b := range p.backends {
		if b.Healthy() {
			n++
		}
	}
	return n
}

// Next advances the round-robin cursor and returns the next healthy backend,
// skipping unhealthy entries. Empty healthy set fails without touching anyone.
func (p *BackendPool) Next() (*Backend, error) {
	n := uint64(len(p.backends))
	for i := uint64(0); i < n; i++ {
		idx := (p.cursor.Add(1) - 1) % n
		b := p.backends[idx]
		if b.Healthy() {
			return b, nil
		}
	}
	return nil, ErrNoHealthyBackend
}

// MarkForwardFailure counts an upstream connection/timeout failure during
// forwarding toward the same threshold as probe failures, so a backend that
// starts failing mid-flight is evicted promptly.
func (p *BackendPool) MarkForwardFailure(b *Backend) {
	b.markFailure(p.failureThreshold)
	directorHealthyBackends.Set(float64(p.HealthyCount()))
}

// StartProbes runs the periodic health-check loop until ctx is cancelled.
// It probes every backend each round, independent of request handling.
func (p *BackendPool) StartProbes(ctx context.Context, probePath string, interval, timeout time.Duration) {
	client := &http.Client{Timeout: timeout}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.probeAll(ctx, client, probePath)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx, client, probePath)
		}
	}
}

func (p *BackendPool) probeAll(ctx context.Context, client *http.Client, probePath string) {
	for _, b := range p.backends {
		p.probeOne(ctx, client, b, probePath)
	}
	directorHealthyBackends.Set(float64(p.HealthyCount()))
}

func (p *BackendPool) probeOne(ctx context.Context, client *http.Client, b *Backend, probePath string) {
	target := b.URL.JoinPath(probePath).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		b.markFailure(p.failureThreshold)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		b.markFailure(p.failureThreshold)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b.markFailure(p.failureThreshold)
		return
	}
	b.markSuccess()
}

// Prometheus metrics for the director.
var (
	directorForwardedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "director_forwarded_total",
		Help: "Requests forwarded to each backend.",
	}, []string{"backend"})
	directorForwardErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "director_forward_errors_total",
		Help: "Forwarding failures per backend.",
	}, []string{"backend"})
	directorHealthyBackends = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "director_healthy_backends",
		Help: "Number of backends currently in rotation.",
	})
)

func init() {
	prometheus.MustRegister(directorForwardedTotal, directorForwardErrors, directorHealthyBackends)
}
