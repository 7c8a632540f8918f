package policy

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// HostResolver looks up host addresses; *net.Resolver implements it
type HostResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// GuessServerAddress returns the public address mail will leave from:
// the SSH server when tunneling, otherwise the SMTP server. Loopback
// and unspecified addresses are never returned.
func GuessServerAddress(ctx context.Context, r HostResolver, smtpURL, sshServer string) (net.IP, error) {
	host, err := serverHost(smtpURL, sshServer)
	if err != nil {
		return nil, err
	}

	var candidates []net.IP
	if ip := net.ParseIP(host); ip != nil {
		candidates = []net.IP{ip}
	} else {
		if r == nil {
			r = net.DefaultResolver
		}
		addrs, err := r.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			candidates = append(candidates, a.IP)
		}
	}

	var found net.IP
	for _, ip := range candidates {
		if ip.IsLoopback() || ip.IsUnspecified() {
			continue
		}
		if ip.To4() != nil {
			return ip, nil
		}
		if found == nil {
			found = ip
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no usable address for %s", host)
	}
	return found, nil
}

func serverHost(smtpURL, sshServer string) (string, error) {
	if sshServer != "" {
		if h, _, err := net.SplitHostPort(sshServer); err == nil {
			return h, nil
		}
		return sshServer, nil
	}

	u, err := url.Parse(smtpURL)
	if err != nil {
		return "", err
	} else if u.Hostname() == "" {
		return "", fmt.Errorf("invalid SMTP URL: %s", smtpURL)
	}
	return u.Hostname(), nil
}
