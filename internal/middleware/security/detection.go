package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"rekord/internal/log"
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	BlockedRequests    int64
}

// Detector flags suspicious requests and resolves client addresses.
type Detector struct {
	suspicious     atomic.Int64
	blocked        atomic.Int64
	trustedProxies []*net.IPNet
}

var (
	pathPatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"etc/passwd", "cmd.exe",
	}
	// Filter values travel in the query string and are bound as
	// parameters, so only markup and traversal attempts are flagged there.
	queryPatterns = []string{
		"../", "<script", "javascript:", "etc/passwd",
	}
	agentPatterns = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan",
	}
)

// NewDetector creates a detector trusting loopback and private networks
// to set forwarding headers.
func NewDetector() *Detector {
	return &Detector{
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
			parseCIDR("::1/128"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// Inspect returns a short reason when r looks like a scan, or "".
func (d *Detector) Inspect(r *http.Request) string {
	reason := inspect(r)
	if reason != "" {
		d.suspicious.Add(1)
	}
	return reason
}

func inspect(r *http.Request) string {
	path := strings.ToLower(r.URL.Path)
	for _, p := range pathPatterns {
		if strings.Contains(path, p) {
			return "path:" + p
		}
	}

	query := strings.ToLower(r.URL.RawQuery)
	for _, p := range queryPatterns {
		if strings.Contains(query, p) {
			return "query:" + p
		}
	}

	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, p := range agentPatterns {
		if strings.Contains(agent, p) {
			return "agent:" + p
		}
	}

	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		return "method:" + r.Method
	}

	if len(r.URL.String()) > 4096 {
		return "url-length"
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
		return "forwarded-hops"
	}
	return ""
}

// Middleware logs suspicious requests. Path scans and unusual methods are
// rejected with 404; everything else is only logged.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := d.Inspect(r)
		if reason == "" {
			next.ServeHTTP(w, r)
			return
		}

		logger := log.FromContext(r.Context()).WithComponent(log.ComponentSecurity)
		logger.WarnContext(r.Context(), "Suspicious request",
			"reason", reason,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, d.ExtractClientIP(r))

		if strings.HasPrefix(reason, "path:") || strings.HasPrefix(reason, "method:") {
			d.blocked.Add(1)
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP extracts the real client IP, honouring forwarding
// headers only from trusted proxies.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		BlockedRequests:    d.blocked.Load(),
	}
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}
