package server

import (
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"

	"context"
	"sync"
)

// configPrompt answers each credential prompt of a session from the
// configuration once. Nobody can retype a password over the API, so a
// second prompt for the same target cancels.
type configPrompt struct {
	cfg *config.AConfig

	mu    sync.Mutex
	asked map[lifecycle.Target]bool
}

// Forget earlier answers before a new session
func (p *configPrompt) reset() {
	p.mu.Lock()
	p.asked = nil
	p.mu.Unlock()
}

func (p *configPrompt) Credentials(ctx context.Context, target lifecycle.Target) (lifecycle.Credentials, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.asked[target] {
		return lifecycle.Credentials{}, false
	}
	if p.asked == nil {
		p.asked = map[lifecycle.Target]bool{}
	}
	p.asked[target] = true

	switch target {
	case lifecycle.TargetSSH:
		ssh := p.cfg.SMTP.SSH
		return lifecycle.Credentials{Username: ssh.User, Password: ssh.Pass}, true
	case lifecycle.TargetSMTP:
		return lifecycle.Credentials{Username: p.cfg.SMTP.User, Password: p.cfg.SMTP.Pass}, true
	}
	return lifecycle.Credentials{}, false
}
