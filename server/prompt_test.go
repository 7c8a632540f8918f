package server

import (
	"github.com/google/go-cmp/cmp"
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"

	"context"
	"testing"
)

func TestConfigPrompt(t *testing.T) {
	cfg := &config.AConfig{}
	cfg.SMTP.User, cfg.SMTP.Pass = "mailer", "mpass"
	cfg.SMTP.SSH.User, cfg.SMTP.SSH.Pass = "tunnel", "tpass"
	p := &configPrompt{cfg: cfg}
	ctx := context.Background()

	creds, ok := p.Credentials(ctx, lifecycle.TargetSSH)
	if diff := cmp.Diff(lifecycle.Credentials{Username: "tunnel", Password: "tpass"}, creds); !ok || diff != "" {
		t.Errorf("SSH credentials mismatch (-want +got):\n%s", diff)
	}
	if _, ok := p.Credentials(ctx, lifecycle.TargetSSH); ok {
		t.Error("Second SSH prompt should cancel")
	}

	creds, ok = p.Credentials(ctx, lifecycle.TargetSMTP)
	if diff := cmp.Diff(lifecycle.Credentials{Username: "mailer", Password: "mpass"}, creds); !ok || diff != "" {
		t.Errorf("SMTP credentials mismatch (-want +got):\n%s", diff)
	}

	p.reset()
	if _, ok := p.Credentials(ctx, lifecycle.TargetSSH); !ok {
		t.Error("Reset prompt should answer again")
	}
}
