package lifecycle

import (
	log "github.com/sirupsen/logrus"

	"context"
)

// Negotiator connects the optional tunnel and then the primary transport.
// Tunnel failures re-prompt until the operator cancels; a primary failure
// ends the attempt.
type Negotiator struct {
	Transport Transport
	Prompt    CredentialPrompt
	Sink      ProgressSink

	// Prompt for primary credentials (a username is configured)
	PrimaryLogin bool
}

func (n *Negotiator) Connect(ctx context.Context, requiresTunnel bool) error {
	if requiresTunnel {
		if err := n.connectTunnel(ctx); err != nil {
			return err
		}
	}
	return n.connectPrimary(ctx)
}

func (n *Negotiator) connectTunnel(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		notifyf(n.Sink, "Connecting to SSH... ")
		creds, ok := n.credentials(ctx, TargetSSH)
		if !ok {
			notifyf(n.Sink, "canceled.\n")
			return &ConnectionError{Target: TargetSSH, Outcome: Canceled}
		}

		a := Attempt{Target: TargetSSH, Credentials: creds}
		a.Outcome = n.Transport.ConnectTunnel(ctx, creds)
		switch a.Outcome {
		case Success:
			notifyf(n.Sink, "done.\n")
			return nil
		case Canceled:
			notifyf(n.Sink, "canceled.\n")
			return &ConnectionError{Target: a.Target, Outcome: a.Outcome}
		}
		n.reportFailure(a)
	}
}

func (n *Negotiator) connectPrimary(ctx context.Context) error {
	notifyf(n.Sink, "Connecting to SMTP server... ")

	a := Attempt{Target: TargetSMTP}
	if n.PrimaryLogin {
		creds, ok := n.credentials(ctx, TargetSMTP)
		if !ok {
			notifyf(n.Sink, "canceled.\n")
			return &ConnectionError{Target: TargetSMTP, Outcome: Canceled}
		}
		a.Credentials = creds
	}

	if a.Outcome = n.Transport.ConnectPrimary(ctx, a.Credentials); a.Outcome != Success {
		n.reportFailure(a)
		return &ConnectionError{Target: a.Target, Outcome: a.Outcome}
	}
	notifyf(n.Sink, "done.\n")
	return nil
}

// No prompt counts as a canceled prompt
func (n *Negotiator) credentials(ctx context.Context, t Target) (Credentials, bool) {
	if n.Prompt == nil {
		return Credentials{}, false
	}
	return n.Prompt.Credentials(ctx, t)
}

func (n *Negotiator) reportFailure(a Attempt) {
	title, desc := "Connection Failed", "Failed to connect to the %s server."
	if a.Outcome == AuthFailed {
		title, desc = "Authentication Failed", "Failed to authenticate to the %s server."
	}

	log.WithFields(log.Fields{
		"target":  a.Target.String(),
		"outcome": a.Outcome.String(),
		"user":    a.Credentials.Username,
	}).Warn("connection attempt failed")

	notifyf(n.Sink, "failed.\n")
	notifyf(n.Sink, "%s: "+desc+"\n", title, a.Target)
}
