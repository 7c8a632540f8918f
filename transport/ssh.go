package transport

import (
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

const sshDialTimeout = 15 * time.Second

// tunnel forwards a local listener to a remote address over SSH
type tunnel struct {
	client   *ssh.Client
	listener net.Listener
	remote   string
	wg       sync.WaitGroup
}

func (t *tunnel) Addr() net.Addr {
	return t.listener.Addr()
}

func (t *tunnel) Close() error {
	err := errors.Join(t.listener.Close(), t.client.Close())
	t.wg.Wait()
	return err
}

func (t *tunnel) serve() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			return
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			defer local.Close()

			remote, err := t.client.Dial("tcp", t.remote)
			if err != nil {
				log.WithError(err).WithField("remote", t.remote).Warn("ssh forward failed")
				return
			}
			defer remote.Close()
			pipe(local, remote)
		}()
	}
}

// Copy both ways until either side closes
func pipe(a, b net.Conn) {
	done := make(chan struct{}, 2)
	cp := func(dst, src net.Conn) {
		io.Copy(dst, src)
		done <- struct{}{}
	}
	go cp(a, b)
	go cp(b, a)
	<-done
}

// sshClientConfig builds auth from the prompted credentials, falling
// back to the configured user, password and key file
func sshClientConfig(fs afero.Fs, cfg *config.SSHConfig, creds lifecycle.Credentials) (*ssh.ClientConfig, error) {
	user, pass := cfg.User, cfg.Pass
	if creds.Username != "" {
		user, pass = creds.Username, creds.Password
	}

	var methods []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := afero.ReadFile(fs, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		signer, err := ssh.ParsePrivateKey(key)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && pass != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(pass))
		}
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if pass != "" {
		methods = append(methods, ssh.Password(pass))
	}

	hostKeys, err := hostKeyCallback(fs, cfg)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: hostKeys,
		Timeout:         sshDialTimeout,
	}, nil
}

var errNoHostKeys = errors.New("ssh host key verification needs smtp.ssh.knownHostsFile or smtp.ssh.insecureIgnoreHostKey")

// hostKeyCallback verifies against the known hosts file read through
// fs. Skipping verification must be asked for explicitly.
func hostKeyCallback(fs afero.Fs, cfg *config.SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.KnownHostsFile == "" {
		if !cfg.InsecureIgnoreHostKey {
			return nil, errNoHostKeys
		}
		log.Warn("ssh host key verification is disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	raw, err := afero.ReadFile(fs, cfg.KnownHostsFile)
	if err != nil {
		return nil, err
	}

	// knownhosts only parses OS files; it reads them fully in New
	tmp, err := os.CreateTemp("", "lure-known-hosts")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	_, err = tmp.Write(raw)
	if err := errors.Join(err, tmp.Close()); err != nil {
		return nil, err
	}
	return knownhosts.New(tmp.Name())
}

func sshServerAddr(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, "22")
}

// openTunnel connects to the SSH server and forwards a local
// port on 127.0.0.1 to remote
func openTunnel(ctx context.Context, server string, cc *ssh.ClientConfig, remote string) (*tunnel, error) {
	addr := sshServerAddr(server)
	d := net.Dialer{Timeout: sshDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cc)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client := ssh.NewClient(c, chans, reqs)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, err
	}

	t := &tunnel{client: client, listener: listener, remote: remote}
	t.wg.Add(1)
	go t.serve()

	log.WithFields(log.Fields{
		"server": addr,
		"local":  listener.Addr().String(),
		"remote": remote,
	}).Info("ssh tunnel established")
	return t, nil
}
