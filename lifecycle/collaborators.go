package lifecycle

import (
	"context"
	"net"
	"time"
)

// Sender delivers the messages of a session on its own goroutines and
// reports through the sink passed to Start, ending with Finished or Stopped.
type Sender interface {
	Start(ctx context.Context, sink ProgressSink) error
	Stop()
	Pause()
	Unpause()
	IsAlive() bool

	// Files the sender needs but cannot read
	MissingFiles() []string
}

// Target of a connection attempt
type Target int

const (
	TargetSSH Target = iota
	TargetSMTP
)

func (t Target) String() string {
	switch t {
	case TargetSSH:
		return "SSH"
	case TargetSMTP:
		return "SMTP"
	default:
		return "unknown"
	}
}

// Outcome of a connection attempt
type Outcome int

const (
	Success Outcome = iota
	AuthFailed
	ConnectFailed
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case AuthFailed:
		return "authentication failed"
	case ConnectFailed:
		return "connection failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type Credentials struct {
	Username string
	Password string
}

// Attempt is a single connection attempt, discarded once its outcome is handled
type Attempt struct {
	Target      Target
	Credentials Credentials
	Outcome     Outcome
}

// Transport establishes the optional tunnel and the primary mail transport
type Transport interface {
	ConnectTunnel(ctx context.Context, creds Credentials) Outcome
	ConnectPrimary(ctx context.Context, creds Credentials) Outcome
}

// CredentialPrompt collects credentials for a target; ok=false cancels
type CredentialPrompt interface {
	Credentials(ctx context.Context, target Target) (creds Credentials, ok bool)
}

// CredentialFunc adapts a function to CredentialPrompt
type CredentialFunc func(ctx context.Context, target Target) (Credentials, bool)

func (f CredentialFunc) Credentials(ctx context.Context, target Target) (Credentials, bool) {
	return f(ctx, target)
}

// Sender policy evaluation results
type PolicyResult string

const (
	PolicyPass     PolicyResult = "pass"
	PolicyFail     PolicyResult = "fail"
	PolicySoftFail PolicyResult = "softfail"
	PolicyNeutral  PolicyResult = "neutral"
	PolicyNone     PolicyResult = ""
)

// PolicyResolver evaluates sender-domain policy for an outbound address.
// Errors are ErrPolicyTimeout or *PolicyError.
type PolicyResolver interface {
	Check(ctx context.Context, ip net.IP, domain, sender string, timeout time.Duration) (PolicyResult, error)
}

// Reachability of a web endpoint
type Reachability struct {
	OK     bool
	Status string
}

type ReachabilityChecker interface {
	Get(ctx context.Context, url string, timeout time.Duration) (Reachability, error)
}

type Campaign struct {
	ID         string
	Name       string
	Company    string
	Expiration *time.Time
}

// CampaignBackend is the server tracking campaigns and landing pages
type CampaignBackend interface {
	GetCampaign(ctx context.Context, id string) (*Campaign, error)
	RegisterLandingPage(ctx context.Context, campaignID, hostname, page string) error
}

// Decider lets the operator override a recoverable failure
type Decider interface {
	AskYesNo(title, message string) bool
}

// DeciderFunc adapts a function to Decider
type DeciderFunc func(title, message string) bool

func (f DeciderFunc) AskYesNo(title, message string) bool {
	return f(title, message)
}

// Answer is a Decider that always gives the same answer
func Answer(yes bool) Decider {
	return DeciderFunc(func(string, string) bool { return yes })
}
