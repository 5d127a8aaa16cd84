package rpc

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit bounds how often a single client may call the API.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

// Enabled reports whether the limit should be enforced at all.
func (l RateLimit) Enabled() bool { return l.RequestsPerMinute > 0 }

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	limit    RateLimit
	trust    proxyTrust
	idleTTL  time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
	clockNow func() time.Time
}

func newRateLimiter(limit RateLimit, trust proxyTrust) *rateLimiter {
	return &rateLimiter{
		limit:    limit,
		trust:    trust,
		idleTTL:  5 * time.Minute,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

func (r *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.allow(r.trust.clientID(req)) {
			writeJSONError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *rateLimiter) allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	r.evictIdle(now)
	entry, ok := r.visitors[id]
	if !ok {
		perSecond := r.limit.RequestsPerMinute / 60.0
		if perSecond <= 0 {
			perSecond = 1
		}
		burst := r.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &visitor{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
		r.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evictIdle drops buckets that have not been touched for idleTTL. Caller
// holds r.mu.
func (r *rateLimiter) evictIdle(now time.Time) {
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			delete(r.visitors, id)
		}
	}
}

// maxForwardedFor bounds how many X-Forwarded-For hops are inspected.
const maxForwardedFor = 16

// proxyTrust lists the peers allowed to report the client address through
// X-Real-IP or X-Forwarded-For. Headers from any other peer are ignored.
type proxyTrust struct {
	nets []*net.IPNet
}

// newProxyTrust parses IP addresses and CIDR ranges.
func newProxyTrust(entries []string) (proxyTrust, error) {
	var trust proxyTrust
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return proxyTrust{}, fmt.Errorf("rpc: invalid trusted proxy %q: %w", entry, err)
			}
			trust.nets = append(trust.nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return proxyTrust{}, fmt.Errorf("rpc: invalid trusted proxy %q", entry)
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		trust.nets = append(trust.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return trust, nil
}

func (p proxyTrust) trusts(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, network := range p.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientID returns the address a request is attributed to. The connecting
// peer is used unless it is a trusted proxy, in which case X-Real-IP or the
// nearest untrusted X-Forwarded-For hop names the client.
func (p proxyTrust) clientID(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !p.trusts(net.ParseIP(peer)) {
		return peer
	}
	if ip := parseHop(r.Header.Get("X-Real-IP")); ip != nil {
		return ip.String()
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	if len(hops) > maxForwardedFor {
		hops = hops[len(hops)-maxForwardedFor:]
	}
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		ip := parseHop(hops[i])
		if ip == nil {
			break
		}
		client = ip.String()
		if !p.trusts(ip) {
			break
		}
	}
	return client
}

// parseHop accepts a bare address or host:port.
func parseHop(raw string) net.IP {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	return net.ParseIP(raw)
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
