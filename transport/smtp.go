package transport

import (
	"github.com/go-gomail/gomail"
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"

	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// SMTP server location parsed from smtp.url
type smtpTarget struct {
	host string
	port int
	ssl  bool
	user string
	pass string
}

func (s smtpTarget) addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

func parseSMTP(cfg *config.SMTPConfig) (*smtpTarget, error) {
	surl, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	} else if surl.Host == "" {
		return nil, fmt.Errorf("invalid SMTP URL: %s", cfg.URL)
	}

	// Populate/validate scheme
	if s := surl.Scheme; s == "" {
		surl.Scheme = "smtps"
	} else if s != "smtp" && s != "smtps" {
		return nil, fmt.Errorf("invalid SMTP URL scheme: %s", s)
	}

	t := &smtpTarget{host: surl.Hostname(), ssl: surl.Scheme == "smtps"}

	// Authentication from URL, then overrides
	if auth := surl.User; auth != nil {
		t.pass, _ = auth.Password()
		t.user = auth.Username()
	}
	if cfg.User != "" {
		t.user = cfg.User
	}
	if cfg.Pass != "" {
		t.pass = cfg.Pass
	}

	if i, err := strconv.Atoi(surl.Port()); err == nil {
		t.port = i
	} else if t.ssl {
		t.port = 465
	} else {
		t.port = 25
	}
	return t, nil
}

// smtpDialer builds a dialer for the SMTP server, or for a local tunnel
// endpoint while verifying TLS against the real server name
func smtpDialer(cfg *config.SMTPConfig, creds lifecycle.Credentials, via net.Addr) (*gomail.Dialer, error) {
	t, err := parseSMTP(cfg)
	if err != nil {
		return nil, err
	}

	user, pass := t.user, t.pass
	if creds.Username != "" {
		user, pass = creds.Username, creds.Password
	}

	host, port := t.host, t.port
	if via != nil {
		h, p, err := net.SplitHostPort(via.String())
		if err != nil {
			return nil, err
		}
		host = h
		port, _ = strconv.Atoi(p)
	}

	d := gomail.NewDialer(host, port, user, pass)
	d.SSL = t.ssl
	d.TLSConfig = &tls.Config{ServerName: t.host}
	if cfg.TLS != nil {
		minVersion, err := cfg.TLS.GetMinVersion()
		if err != nil {
			return nil, err
		}
		d.TLSConfig.InsecureSkipVerify = cfg.TLS.InsecureSkipVerify
		d.TLSConfig.MinVersion = minVersion
	}
	return d, nil
}

// Classify a dial error into a connection outcome
func dialOutcome(err error) lifecycle.Outcome {
	if err == nil {
		return lifecycle.Success
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535:
			return lifecycle.AuthFailed
		}
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return lifecycle.AuthFailed
	}
	return lifecycle.ConnectFailed
}
