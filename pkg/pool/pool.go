package pool

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PoolConfig defines outbound HTTP client configuration
type PoolConfig struct {
	RequestTimeout      time.Duration `json:"request_timeout"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	IdleTimeout         time.Duration `json:"idle_timeout"`
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
}

// DefaultPoolConfig returns the defaults used for OAuth provider calls
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		RequestTimeout:      10 * time.Second,
		DialTimeout:         5 * time.Second,
		IdleTimeout:         90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}
}

// HostHealth tracks call outcomes for one upstream host
type HostHealth struct {
	Host         string    `json:"host"`
	IsHealthy    bool      `json:"is_healthy"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
}

// ConnectionPool hands out one shared *http.Client per upstream host.
// Every request made through a pooled client is counted in the host's
// health record.
type ConnectionPool struct {
	mu          sync.RWMutex
	httpClients map[string]*http.Client
	healthStats map[string]*HostHealth
	config      PoolConfig
	logger      *zap.Logger
}

// NewConnectionPool creates a new connection pool
func NewConnectionPool(config PoolConfig, logger *zap.Logger) *ConnectionPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultPoolConfig().RequestTimeout
	}

	return &ConnectionPool{
		httpClients: make(map[string]*http.Client),
		healthStats: make(map[string]*HostHealth),
		config:      config,
		logger:      logger,
	}
}

// HostOf reduces a URL to the host key used by the pool. Bare hosts are
// returned unchanged.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// Client returns the shared client for host, creating it on first use.
func (p *ConnectionPool) Client(host string) *http.Client {
	p.mu.RLock()
	client, exists := p.httpClients[host]
	p.mu.RUnlock()

	if exists {
		return client
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double check after acquiring write lock
	if client, exists = p.httpClients[host]; exists {
		return client
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   p.config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          p.config.MaxIdleConns,
		MaxIdleConnsPerHost:   p.config.MaxIdleConnsPerHost,
		IdleConnTimeout:       p.config.IdleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	client = &http.Client{
		Transport: &trackingTransport{host: host, base: transport, pool: p},
		Timeout:   p.config.RequestTimeout,
	}

	p.httpClients[host] = client
	p.healthStats[host] = &HostHealth{
		Host:      host,
		IsHealthy: true,
		LastCheck: time.Now(),
	}

	p.logger.Info("Created new HTTP client",
		zap.String("host", host),
		zap.Duration("timeout", p.config.RequestTimeout),
	)

	return client
}

// ClientFor is Client keyed by the host of rawURL.
func (p *ConnectionPool) ClientFor(rawURL string) *http.Client {
	return p.Client(HostOf(rawURL))
}

// RecordSuccess records a successful request to a host
func (p *ConnectionPool) RecordSuccess(host string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if health, exists := p.healthStats[host]; exists {
		health.IsHealthy = true
		health.SuccessCount++
		health.LastCheck = time.Now()
		health.LastError = ""
	}
}

// RecordFailure records a failed request to a host
func (p *ConnectionPool) RecordFailure(host string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if health, exists := p.healthStats[host]; exists {
		health.IsHealthy = false
		health.FailureCount++
		health.LastCheck = time.Now()
		if err != nil {
			health.LastError = err.Error()
		}
	}
}

// IsHealthy reports whether the last call to host succeeded
func (p *ConnectionPool) IsHealthy(host string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if health, exists := p.healthStats[host]; exists {
		return health.IsHealthy
	}
	return true
}

// GetHealthStats returns a copy of the health record of every host
func (p *ConnectionPool) GetHealthStats() map[string]HostHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := make(map[string]HostHealth, len(p.healthStats))
	for host, health := range p.healthStats {
		stats[host] = *health
	}
	return stats
}

// CloseAllConnections drops idle connections and forgets every client
func (p *ConnectionPool) CloseAllConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for host, client := range p.httpClients {
		client.CloseIdleConnections()
		delete(p.httpClients, host)
	}

	p.logger.Info("Closed all connections")
}

// Stats returns pool statistics
func (p *ConnectionPool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"http_clients": len(p.httpClients),
		"hosts":        len(p.healthStats),
	}
}

type trackingTransport struct {
	host string
	base *http.Transport
	pool *ConnectionPool
}

// 5xx responses count as failures, 4xx are the caller's problem.
func (t *trackingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	switch {
	case err != nil:
		t.pool.RecordFailure(t.host, err)
	case resp.StatusCode >= http.StatusInternalServerError:
		t.pool.RecordFailure(t.host, &statusError{code: resp.StatusCode})
	default:
		t.pool.RecordSuccess(t.host)
	}
	return resp, err
}

func (t *trackingTransport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
}

type statusError struct{ code int }

func (e *statusError) Error() string {
	return "upstream responded " + http.StatusText(e.code)
}
