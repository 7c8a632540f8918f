// Package transport connects the optional SSH tunnel and the SMTP server
// and hands out delivery connections to the send queue.
package transport

import (
	"github.com/go-gomail/gomail"
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	log "github.com/sirupsen/logrus"
	"github.com/toorop/go-dkim"

	"context"
	"errors"
	"io"
	"net"
	"sync"
)

var ErrNotConnected = errors.New("transport is not connected")

// Transport implements lifecycle.Transport for one send session
type Transport struct {
	cfg *config.AConfig

	// Dry-run messages are also written here when set
	DryRunOutput io.Writer

	mu     sync.Mutex
	tunnel *tunnel
	dialer *gomail.Dialer
	first  gomail.SendCloser
	dry    *dryRunSendCloser
	dkim   *dkim.SigOptions
}

func New(cfg *config.AConfig) *Transport {
	return &Transport{cfg: cfg}
}

func (t *Transport) ConnectTunnel(ctx context.Context, creds lifecycle.Credentials) lifecycle.Outcome {
	logger := log.WithField("component", "transport")
	smtp, err := parseSMTP(&t.cfg.SMTP)
	if err != nil {
		logger.WithError(err).Error("invalid smtp configuration")
		return lifecycle.ConnectFailed
	}

	cc, err := sshClientConfig(t.cfg.AppFs, &t.cfg.SMTP.SSH, creds)
	if err != nil {
		logger.WithError(err).Error("invalid ssh configuration")
		return lifecycle.ConnectFailed
	}

	tun, err := openTunnel(ctx, t.cfg.SMTP.SSH.Server, cc, smtp.addr())
	if err != nil {
		if ctx.Err() != nil {
			return lifecycle.Canceled
		}
		logger.WithError(err).Warn("ssh connection failed")
		return dialOutcome(err)
	}

	t.mu.Lock()
	old := t.tunnel
	t.tunnel = tun
	t.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return lifecycle.Success
}

func (t *Transport) ConnectPrimary(ctx context.Context, creds lifecycle.Credentials) lifecycle.Outcome {
	logger := log.WithField("component", "transport")
	if err := ctx.Err(); err != nil {
		return lifecycle.Canceled
	}

	var signing *dkim.SigOptions
	if conf := t.cfg.DKIM; len(conf) > 0 {
		opts, err := dkimOptions(t.cfg.AppFs, conf)
		if err != nil {
			logger.WithError(err).Error("invalid dkim configuration")
			return lifecycle.ConnectFailed
		}
		signing = &opts
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.dkim = signing

	if t.cfg.DryRun {
		t.dry = &dryRunSendCloser{out: t.DryRunOutput}
		logger.Info("dry run: messages will not be delivered")
		return lifecycle.Success
	}

	var via net.Addr
	if t.tunnel != nil {
		via = t.tunnel.Addr()
	}
	d, err := smtpDialer(&t.cfg.SMTP, creds, via)
	if err != nil {
		logger.WithError(err).Error("invalid smtp configuration")
		return lifecycle.ConnectFailed
	}

	sc, err := d.Dial()
	if err != nil {
		logger.WithError(err).WithField("host", d.Host).Warn("smtp connection failed")
		return dialOutcome(err)
	}

	t.dialer, t.first = d, sc
	return lifecycle.Success
}

// NewConn hands the connection opened by ConnectPrimary to the first
// caller and dials a new one for every later caller
func (t *Transport) NewConn() (gomail.SendCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sc gomail.SendCloser
	switch {
	case t.dry != nil:
		sc = t.dry
	case t.first != nil:
		sc, t.first = t.first, nil
	case t.dialer != nil:
		var err error
		if sc, err = t.dialer.Dial(); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNotConnected
	}

	if t.dkim != nil {
		sc = &dkimSendCloser{options: *t.dkim, sc: sc}
	}
	return sc, nil
}

// DryRunSent lists messages accepted in dry-run mode
func (t *Transport) DryRunSent() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dry == nil {
		return nil
	}
	return t.dry.Sent()
}

// Close releases an unused primary connection and the tunnel
func (t *Transport) Close() error {
	t.mu.Lock()
	first, tun := t.first, t.tunnel
	t.first, t.tunnel = nil, nil
	t.mu.Unlock()

	var err error
	if first != nil {
		err = first.Close()
	}
	if tun != nil {
		err = errors.Join(err, tun.Close())
	}
	return err
}
