package lifecycle

import (
	"golang.org/x/net/idna"

	"net/mail"
	"net/url"
	"strings"
)

// ValidEmailAddress is true for a bare "local@domain" address
// with a dotted, IDNA-valid domain
func ValidEmailAddress(addr string) bool {
	a, err := mail.ParseAddress(addr)
	if err != nil || a.Name != "" || a.Address != addr {
		return false
	}
	_, domain, ok := SplitEmailAddress(addr)
	if !ok || !strings.Contains(strings.Trim(domain, "."), ".") {
		return false
	}
	_, err = idna.Lookup.ToASCII(domain)
	return err == nil
}

// SplitEmailAddress splits at the last "@"
func SplitEmailAddress(addr string) (local, domain string, ok bool) {
	i := strings.LastIndex(addr, "@")
	if i <= 0 || i == len(addr)-1 {
		return "", "", false
	}
	return addr[:i], addr[i+1:], true
}

// InjectQueryParam sets key=value in the query of rawURL,
// keeping other parameters
func InjectQueryParam(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LandingPage splits a web server URL into the hostname (with port)
// and the page path without its leading "/"
func LandingPage(rawURL string) (hostname, page string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	return u.Host, strings.TrimLeft(u.Path, "/"), nil
}
