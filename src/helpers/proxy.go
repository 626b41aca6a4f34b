package helpers

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultUserAgent = "microstructure-cache/1.0 (Go-http-client/1.1)"

// -----------------------------------------------------------------------------

type proxyEntry struct {
	url      *url.URL
	failures int
	benched  time.Time
}

// ProxyPool hands out outbound proxies for the tick feed. A proxy that fails
// is benched for the cooldown and the pool moves on to the next one.
type ProxyPool struct {
	entries   []*proxyEntry
	current   int
	cooldown  time.Duration
	userAgent string
	mu        sync.Mutex

	now func() time.Time
}

// -----------------------------------------------------------------------------

// NewProxyPool drops entries that do not parse as proxy URLs.
func NewProxyPool(proxies []string, userAgent string, cooldown time.Duration) *ProxyPool {
	pool := &ProxyPool{
		cooldown:  cooldown,
		userAgent: userAgent,
		now:       time.Now,
	}
	if pool.userAgent == "" {
		pool.userAgent = defaultUserAgent
	}

	for _, raw := range proxies {
		u, err := ParseProxy(raw)
		if err != nil {
			continue
		}
		pool.entries = append(pool.entries, &proxyEntry{url: u})
	}
	return pool
}

// -----------------------------------------------------------------------------

// Proxy returns the first proxy not on the bench, starting from the current
// one. It returns nil for a direct connection when no proxy is usable.
func (p *ProxyPool) Proxy() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.entries); i++ {
		idx := (p.current + i) % len(p.entries)
		if now.Before(p.entries[idx].benched) {
			continue
		}
		p.current = idx
		return p.entries[idx].url
	}
	return nil
}

// -----------------------------------------------------------------------------

// ReportFailure benches the current proxy and advances the pool.
func (p *ProxyPool) ReportFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return
	}
	e := p.entries[p.current]
	e.failures++
	e.benched = p.now().Add(p.cooldown)
	p.current = (p.current + 1) % len(p.entries)
}

// -----------------------------------------------------------------------------

func (p *ProxyPool) ReportSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return
	}
	p.entries[p.current].failures = 0
}

// -----------------------------------------------------------------------------

func (p *ProxyPool) UserAgent() string {
	return p.userAgent
}

// -----------------------------------------------------------------------------

func (p *ProxyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// -----------------------------------------------------------------------------

// ParseProxy accepts host:port or a full URL; a missing scheme means http.
func ParseProxy(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty proxy")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy %q has no host", raw)
	}
	return u, nil
}
