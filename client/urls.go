package client

import (
	"github.com/rykov/lure/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

// SiteSource lists the server's site templates
type SiteSource interface {
	SiteTemplates(ctx context.Context) ([]SiteTemplate, error)
}

// URLCompleter caches the landing page URLs offered for the web server
// URL and reloads them once they are older than the refresh frequency
type URLCompleter struct {
	source    SiteSource
	addresses []config.ServerAddress
	refresh   time.Duration
	now       func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	urls   []string
	loaded time.Time
}

func NewURLCompleter(cfg *config.AConfig, source SiteSource) *URLCompleter {
	return &URLCompleter{
		source:    source,
		addresses: cfg.Server.Addresses,
		refresh:   cfg.RefreshFrequency,
		now:       time.Now,
	}
}

// Reload fetches the URLs now; concurrent calls share one request
func (u *URLCompleter) Reload(ctx context.Context) error {
	_, err, _ := u.group.Do("reload", func() (any, error) {
		templates, err := u.source.SiteTemplates(ctx)
		if err != nil {
			return nil, err
		}
		urls := BuildURLs(u.addresses, templates)

		u.mu.Lock()
		u.urls, u.loaded = urls, u.now()
		u.mu.Unlock()

		log.WithField("count", len(urls)).Debug("Updated web server url completions")
		return nil, nil
	})
	return err
}

// Complete returns the cached URLs matching key and reloads
// stale ones in the background
func (u *URLCompleter) Complete(ctx context.Context, key string) []string {
	u.mu.Lock()
	urls, stale := u.urls, u.now().Sub(u.loaded) >= u.refresh
	u.mu.Unlock()

	if stale {
		go func() {
			if err := u.Reload(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("Failed to reload web server url completions")
			}
		}()
	}

	var out []string
	for _, candidate := range urls {
		if Match(candidate, key) {
			out = append(out, candidate)
		}
	}
	return out
}

// BuildURLs lists an http URL for every page of every site and an https
// URL as well when the server listens with TLS. Sites without a hostname
// use the last routable server address.
func BuildURLs(addresses []config.ServerAddress, templates []SiteTemplate) []string {
	ssl := config.ServerConfig{Addresses: addresses}.UsesSSL()
	fallback := fallbackHostname(addresses)

	var out []string
	for _, t := range templates {
		hostname := t.Hostname
		if hostname == "" {
			hostname = fallback
		}
		if hostname == "" {
			continue
		}
		for _, page := range t.Pages {
			landing := page
			if t.Path != "." {
				landing = t.Path + page
			}
			out = append(out, joinURL("http://"+hostname, landing))
			if ssl {
				out = append(out, joinURL("https://"+hostname, landing))
			}
		}
	}
	return out
}

func fallbackHostname(addresses []config.ServerAddress) string {
	var hostname string
	for _, a := range addresses {
		ip := net.ParseIP(a.Host)
		if ip == nil || ip.IsUnspecified() {
			continue
		}
		if ip.IsGlobalUnicast() || ip.IsPrivate() {
			hostname = a.Host
		}
	}
	return hostname
}

func joinURL(base, ref string) string {
	b, err := url.Parse(base + "/")
	if err != nil {
		return base + "/" + strings.TrimLeft(ref, "/")
	}
	r, err := url.Parse(ref)
	if err != nil {
		return base + "/" + strings.TrimLeft(ref, "/")
	}
	return b.ResolveReference(r).String()
}

// Match reports whether candidate completes key. Keys match by prefix,
// or by hostname prefix and path prefix when they carry a host.
func Match(candidate, key string) bool {
	if strings.HasPrefix(candidate, key) {
		return true
	}
	if !strings.HasPrefix(key, "http") {
		key = "http://" + key
	}

	k, err := url.Parse(key)
	if err != nil {
		return false
	}
	c, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if k.Host == "" {
		return true
	}
	if !strings.HasPrefix(c.Hostname(), k.Hostname()) {
		return false
	}
	return strings.HasPrefix(c.Path, k.Path)
}
