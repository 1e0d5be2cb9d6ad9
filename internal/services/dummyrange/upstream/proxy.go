package upstream

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// DirectProxyName is the configuration spelling of "no proxy".
const DirectProxyName = "direct"

// Proxy is one candidate base prefix for outbound calls.
type Proxy struct {
	// Prefix is prepended to the target URL; empty means direct.
	Prefix string
	// Encode passes the target URL as a single percent-encoded query value.
	Encode bool
}

// Name identifies the proxy in logs, spans, and status messages.
func (p Proxy) Name() string {
	if p.Prefix == "" {
		return DirectProxyName
	}
	return p.Prefix
}

// Wrap returns the URL that reaches target through this proxy.
func (p Proxy) Wrap(target string) string {
	if p.Prefix == "" {
		return target
	}
	if p.Encode {
		return p.Prefix + url.QueryEscape(target)
	}
	return p.Prefix + target
}

// ParseProxies converts configuration entries into candidates, preserving
// order. "direct" (or an empty entry) selects direct access; prefixes that
// contain a query string take the target percent-encoded.
func ParseProxies(entries []string) ([]Proxy, error) {
	proxies := make([]Proxy, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.EqualFold(entry, DirectProxyName) {
			entry = ""
		}
		if seen[entry] {
			continue
		}
		if entry != "" {
			parsed, err := url.Parse(entry)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return nil, fmt.Errorf("invalid proxy prefix %q", entry)
			}
		}
		seen[entry] = true
		proxies = append(proxies, Proxy{Prefix: entry, Encode: strings.Contains(entry, "?")})
	}
	if len(proxies) == 0 {
		proxies = append(proxies, Proxy{})
	}
	return proxies, nil
}

// Resolver picks the first candidate that has not recently failed.
type Resolver struct {
	mu         sync.Mutex
	candidates []Proxy
	failed     map[string]bool
}

// NewResolver builds a resolver over candidates; no candidates means direct only.
func NewResolver(candidates []Proxy) *Resolver {
	if len(candidates) == 0 {
		candidates = []Proxy{{}}
	}
	return &Resolver{
		candidates: append([]Proxy(nil), candidates...),
		failed:     make(map[string]bool),
	}
}

// Resolve returns the first non-failed candidate. When every candidate has
// failed the failed set is cleared and the first candidate is returned, so a
// burst of failures never locks the client out permanently.
func (r *Resolver) Resolve() Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, candidate := range r.candidates {
		if !r.failed[candidate.Prefix] {
			return candidate
		}
	}
	clear(r.failed)
	return r.candidates[0]
}

// MarkFailed records proxy as failed until the next full recovery cycle.
func (r *Resolver) MarkFailed(proxy Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[proxy.Prefix] = true
}

// Remaining reports how many candidates are not marked failed.
func (r *Resolver) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	remaining := 0
	for _, candidate := range r.candidates {
		if !r.failed[candidate.Prefix] {
			remaining++
		}
	}
	return remaining
}

// Len reports the number of candidates.
func (r *Resolver) Len() int {
	return len(r.candidates)
}
