package mail

import (
	"github.com/rykov/lure/client"
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	"github.com/rykov/lure/policy"
	"github.com/rykov/lure/transport"
	log "github.com/sirupsen/logrus"

	"context"
	"io"
	"net"
)

// Frontend is the operator side of a send session
type Frontend struct {
	Sink    lifecycle.ProgressSink
	Prompt  lifecycle.CredentialPrompt
	Decider lifecycle.Decider

	// Dry-run messages are also written here when set
	DryRunOutput io.Writer
}

// NewController wires a lifecycle controller to the configured
// transport, campaign server and sender policy checks
func NewController(cfg *config.AConfig, fe Frontend) *lifecycle.Controller {
	var backend lifecycle.CampaignBackend
	if cfg.Server.URL != "" {
		backend = client.NewBackend(cfg)
	}

	c := &lifecycle.Controller{
		Config: lifecycle.ControllerConfig{
			CampaignID:     cfg.CampaignID,
			WebserverURL:   cfg.Mailer.WebserverURL,
			MessageType:    cfg.Mailer.MessageType,
			RequiresTunnel: cfg.SMTP.SSH.Enable,
			PrimaryLogin:   cfg.SMTP.User != "" && !cfg.DryRun,
		},
		Backend: backend,
		Prompt:  fe.Prompt,
		Decider: fe.Decider,
		Sink:    fe.Sink,
	}

	c.NewSession = func(ctx context.Context) (*lifecycle.Session, error) {
		tr := transport.New(cfg)
		tr.DryRunOutput = fe.DryRunOutput
		sender := NewSender(cfg, tr, tr)

		checks := &lifecycle.Checks{Sink: fe.Sink, Decider: fe.Decider, Fs: cfg.AppFs}
		return &lifecycle.Session{
			Sender:    sender,
			Transport: tr,
			Prechecks: Prechecks(cfg, checks, sender, backend),
		}, nil
	}
	return c
}

// Prechecks builds the built-in steps in their declared order.
// The campaign step needs a campaign server.
func Prechecks(cfg *config.AConfig, checks *lifecycle.Checks, sender lifecycle.Sender, backend lifecycle.CampaignBackend) []lifecycle.Step {
	m := cfg.Mailer
	steps := []lifecycle.Step{
		checks.Settings(m, cfg.SMTP.URL),
		checks.Attachment(m.AttachmentFile, cfg.Plugins),
		checks.RequiredFiles(sender.MissingFiles),
	}
	if backend != nil {
		steps = append(steps, checks.Campaign(backend, cfg.CampaignID))
	} else {
		log.WithField("component", "mail").Info("No campaign server configured, skipping the campaign check")
	}
	return append(steps,
		checks.URL(client.NewWebChecker(), m.WebserverURL, cfg.Server.SecretID),
		checks.Source(m.SourceEmail, smtpSource(m)),
		checks.SPF(policy.NewResolver(), SPFOptions(cfg)),
	)
}

// SPFOptions reads the policy check settings, guessing the outbound
// server from the SSH server when tunneling
func SPFOptions(cfg *config.AConfig) lifecycle.SPFOptions {
	return lifecycle.SPFOptions{
		Level:       cfg.SPF.CheckLevel,
		Timeout:     cfg.SPF.CheckTimeout,
		SenderEmail: smtpSource(cfg.Mailer),
		ServerAddress: func(ctx context.Context) (net.IP, error) {
			var sshServer string
			if cfg.SMTP.SSH.Enable {
				sshServer = cfg.SMTP.SSH.Server
			}
			return policy.GuessServerAddress(ctx, net.DefaultResolver, cfg.SMTP.URL, sshServer)
		},
	}
}

// The envelope sender falls back to the From address
func smtpSource(m config.MailerConfig) string {
	if m.SourceEmailSMTP != "" {
		return m.SourceEmailSMTP
	}
	return m.SourceEmail
}
