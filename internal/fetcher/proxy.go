package fetcher

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/AutoHarvest/internal/config"
)

type proxyCtxKey struct{}

// ProxyManager handles proxy rotation. The proxy for a request is chosen
// before the request is sent and carried in its context, so a failure can be
// charged to the proxy that served it.
type ProxyManager struct {
	proxies      []*proxyEntry
	rotation     string
	rotateOnFail bool
	index        atomic.Int64
	mu           sync.RWMutex
	logger       *slog.Logger
}

type proxyEntry struct {
	URL     *url.URL
	Healthy bool
	LastErr error
	LastUse time.Time
}

// NewProxyManager creates a new ProxyManager from configuration.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		proxies:      make([]*proxyEntry, 0, len(cfg.URLs)),
		rotation:     cfg.Rotation,
		rotateOnFail: cfg.RotateOnFail,
		logger:       logger.With("component", "proxy_manager"),
	}

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil {
			logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pm.proxies = append(pm.proxies, &proxyEntry{URL: u, Healthy: true})
	}

	logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", cfg.Rotation)
	return pm
}

// WithProxy picks the next proxy and attaches it to ctx.
func (pm *ProxyManager) WithProxy(ctx context.Context) context.Context {
	if p := pm.Next(); p != nil {
		return context.WithValue(ctx, proxyCtxKey{}, p)
	}
	return ctx
}

// ProxyFunc returns an http.Transport-compatible proxy function that uses the
// proxy attached by WithProxy, or a direct connection when there is none.
func (pm *ProxyManager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		if p, ok := req.Context().Value(proxyCtxKey{}).(*url.URL); ok {
			return p, nil
		}
		return nil, nil
	}
}

// Next returns the next proxy URL based on the rotation strategy. When every
// proxy has been marked unhealthy they are all revived.
func (pm *ProxyManager) Next() *url.URL {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return nil
	}

	healthy := pm.healthyProxies()
	if len(healthy) == 0 {
		pm.logger.Warn("all proxies unhealthy, reviving pool", "count", len(pm.proxies))
		for _, p := range pm.proxies {
			p.Healthy = true
			p.LastErr = nil
		}
		healthy = pm.proxies
	}

	var entry *proxyEntry
	switch pm.rotation {
	case "random":
		entry = healthy[rand.Intn(len(healthy))]
	default: // round_robin
		entry = healthy[pm.index.Add(1)%int64(len(healthy))]
	}
	entry.LastUse = time.Now()
	return entry.URL
}

// ReportFailure marks the proxy carried by ctx as unhealthy when rotate_on_fail is set.
func (pm *ProxyManager) ReportFailure(ctx context.Context, err error) {
	if !pm.rotateOnFail {
		return
	}
	if p, ok := ctx.Value(proxyCtxKey{}).(*url.URL); ok {
		pm.MarkFailed(p, err)
	}
}

// MarkFailed marks a proxy as unhealthy.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, p := range pm.proxies {
		if p.URL.String() == proxyURL.String() {
			p.Healthy = false
			p.LastErr = err
			pm.logger.Warn("proxy marked unhealthy", "proxy", proxyURL.Host, "error", err)
			break
		}
	}
}

// Count returns the total number of proxies.
func (pm *ProxyManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.proxies)
}

// HealthyCount returns the number of healthy proxies.
func (pm *ProxyManager) HealthyCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.healthyProxies())
}

func (pm *ProxyManager) healthyProxies() []*proxyEntry {
	healthy := make([]*proxyEntry, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		if p.Healthy {
			healthy = append(healthy, p)
		}
	}
	return healthy
}
