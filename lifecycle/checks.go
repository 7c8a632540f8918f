package lifecycle

import (
	"github.com/bep/inflect"
	"github.com/moby/patternmatcher"
	"github.com/rykov/lure/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"time"
)

// Fixed timeout of the web server URL check
const URLCheckTimeout = 6 * time.Second

// Names of the built-in prechecks in their declared order
var PrecheckOrder = []string{
	"settings", "attachment", "required-files", "campaign", "url", "source", "spf",
}

// Checks builds the built-in precheck steps. Each step receives
// only the settings it reads.
type Checks struct {
	Sink    ProgressSink
	Decider Decider
	Fs      afero.Fs
	Now     func() time.Time
}

func (c *Checks) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Checks) ask(title, message string) bool {
	return c.Decider != nil && c.Decider.AskYesNo(title, message)
}

func (c *Checks) readable(path string) bool {
	fi, err := c.Fs.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	f, err := c.Fs.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

type requiredSetting struct {
	name  string
	value string
	file  bool
}

// Settings checks that the options needed by the selected
// target and message modes are set and readable
func (c *Checks) Settings(m config.MailerConfig, smtpURL string) Step {
	return Step{Name: "settings", Run: func(ctx context.Context) Result {
		switch m.TargetField {
		case "to", "cc", "bcc":
		default:
			return Fail("Invalid target field: '%s'", m.TargetField)
		}

		required := []requiredSetting{
			{"Web Server URL", m.WebserverURL, false},
			{"Subject", m.Subject, false},
			{"Message HTML File", m.HTMLFile, true},
		}

		switch m.TargetType {
		case "file":
			required = append(required, requiredSetting{"Target CSV File", m.TargetFile, true})
		case "single":
			required = append(required,
				requiredSetting{"Target Email Address", m.TargetEmailAddress, false},
				requiredSetting{"Target Name", m.TargetName, false},
			)
		default:
			return Fail("Invalid target type: '%s'", m.TargetType)
		}

		switch m.MessageType {
		case "email", "calendar_invite":
		default:
			return Fail("Invalid message type: '%s'", m.MessageType)
		}
		if m.MessageType == "email" && m.TargetField != "to" {
			required = append(required, requiredSetting{"Recipient 'To' Email Address", m.RecipientEmailTo, false})
		}

		for _, s := range required {
			if s.value == "" {
				return Fail("Missing required option: %s", s.name)
			}
			if s.file && !c.readable(s.value) {
				return Fail("Missing required file: '%s'", s.value)
			}
		}

		if smtpURL == "" {
			return Fail("Missing required option: SMTP Server")
		}
		if !m.MessageUID.Charset.Any() {
			return Fail("At least one character set must be enabled for the message UID")
		}
		return Pass()
	}}
}

// Attachment verifies the attachment file and reports its digests
// and the plugins that will modify it
func (c *Checks) Attachment(path string, plugins []config.PluginConfig) Step {
	return Step{Name: "attachment", Run: func(ctx context.Context) Result {
		if path == "" {
			return Pass()
		}
		if fi, err := c.Fs.Stat(path); err != nil || fi.IsDir() {
			return Fail("The specified attachment file does not exist.")
		}
		f, err := c.Fs.Open(path)
		if err != nil {
			return Fail("The specified attachment file can not be read.")
		}
		defer f.Close()

		name := filepath.Base(path)
		notifyf(c.Sink, "File '%s' will be attached to sent messages.\n", name)

		hMD5, hSHA1, hSHA256 := md5.New(), sha1.New(), sha256.New()
		if _, err := io.Copy(io.MultiWriter(hMD5, hSHA1, hSHA256), f); err != nil {
			return Fail("The specified attachment file can not be read.")
		}
		notifyf(c.Sink, "  MD5:     %x\n", hMD5.Sum(nil))
		notifyf(c.Sink, "  SHA-1:   %x\n", hSHA1.Sum(nil))
		notifyf(c.Sink, "  SHA-256: %x\n", hSHA256.Sum(nil))

		var titles []string
		for _, p := range plugins {
			if attachmentPluginMatches(p, name) {
				titles = append(titles, p.Title)
			}
		}
		if n := len(titles); n > 0 {
			noun, verb := "plugin", "is"
			if n != 1 {
				noun, verb = inflect.Pluralize(noun), "are"
			}
			notifyf(c.Sink, "The following %d attachment-modifying %s %s enabled:\n", n, noun, verb)
			for _, t := range titles {
				notifyf(c.Sink, "  - %s\n", t)
			}
		}
		return Pass()
	}}
}

// Plugins without patterns modify every attachment
func attachmentPluginMatches(p config.PluginConfig, name string) bool {
	if len(p.Patterns) == 0 {
		return true
	}
	pm, err := patternmatcher.New(p.Patterns)
	if err != nil {
		log.WithField("plugin", p.Title).Warnf("invalid attachment pattern: %s", err)
		return false
	}
	ok, err := pm.MatchesOrParentMatches(name)
	return err == nil && ok
}

// RequiredFiles fails when the sender is missing any file it needs
func (c *Checks) RequiredFiles(missing func() []string) Step {
	return Step{Name: "required-files", Run: func(ctx context.Context) Result {
		files := missing()
		if len(files) == 0 {
			return Pass()
		}
		lines := make([]string, len(files))
		for i, f := range files {
			lines[i] = fmt.Sprintf("Missing required file: '%s'", f)
		}
		return Fail("%s", strings.Join(lines, "\n"))
	}}
}

// Campaign fails when the active campaign has expired
func (c *Checks) Campaign(backend CampaignBackend, campaignID string) Step {
	return Step{Name: "campaign", Run: func(ctx context.Context) Result {
		camp, err := backend.GetCampaign(ctx, campaignID)
		if err != nil {
			return Fail("Failed to load campaign '%s': %v", campaignID, err)
		}
		if exp := camp.Expiration; exp != nil && exp.Before(c.now()) {
			return Fail("The current campaign has already expired.")
		}
		return Pass()
	}}
}

// URL checks that the web server URL responds, injecting
// the server secret as the "id" query parameter
func (c *Checks) URL(checker ReachabilityChecker, webURL, secret string) Step {
	return Step{Name: "url", Run: func(ctx context.Context) Result {
		err := checkURL(ctx, checker, webURL, secret)
		if err == nil {
			notifyf(c.Sink, "Checking the target URL... success, done.\n")
			return Pass()
		}

		log.WithError(err).Warn("web server url check failed")
		if !c.ask("Unable To Open The Web Server URL", "The URL may be invalid, continue sending messages anyways?") {
			return Fail("Checking the target URL... failed, sending aborted.")
		}
		notifyf(c.Sink, "Checking the target URL... failed, error ignored.\n")
		return Pass()
	}}
}

func checkURL(ctx context.Context, checker ReachabilityChecker, webURL, secret string) error {
	target, err := InjectQueryParam(webURL, "id", secret)
	if err != nil {
		return &TransportUnreachable{URL: webURL, Err: err}
	}
	r, err := checker.Get(ctx, target, URLCheckTimeout)
	if err != nil {
		return &TransportUnreachable{URL: webURL, Err: err}
	}
	if !r.OK {
		return &TransportUnreachable{URL: webURL, Status: r.Status}
	}
	return nil
}

// Source validates the sender addresses
func (c *Checks) Source(sourceEmail, smtpSourceEmail string) Step {
	return Step{Name: "source", Run: func(ctx context.Context) Result {
		if ValidEmailAddress(sourceEmail) && ValidEmailAddress(smtpSourceEmail) {
			return Pass()
		}
		notifyf(c.Sink, "WARNING: One or more source email addresses specified are invalid.\n")
		if !c.ask("Invalid Email Address", "One or more source email addresses specified are invalid.\nContinue sending messages anyways?") {
			return Fail("Sending aborted due to invalid source email address.")
		}
		return Pass()
	}}
}

// Sender policy check options
type SPFOptions struct {
	// 0 disables the check, 1 fails on fail/softfail,
	// 2 fails unless neutral/pass
	Level   int
	Timeout time.Duration

	// SMTP envelope sender
	SenderEmail string

	// Guesses the address mail will leave from
	ServerAddress func(ctx context.Context) (net.IP, error)
}

// SPF evaluates the sending domain's policy for the outbound server address
func (c *Checks) SPF(resolver PolicyResolver, opts SPFOptions) Step {
	return Step{Name: "spf", Run: func(ctx context.Context) Result {
		if opts.Level == 0 {
			return Pass()
		}
		if !ValidEmailAddress(opts.SenderEmail) {
			notifyf(c.Sink, "WARNING: Can not check SPF records for an invalid source email address.\n")
			return Pass()
		}

		var ip net.IP
		if opts.ServerAddress != nil {
			var err error
			if ip, err = opts.ServerAddress(ctx); err != nil {
				log.WithError(err).Debug("smtp server address lookup failed")
			}
		}
		if ip == nil {
			notifyf(c.Sink, "Skipped checking the SPF policy because the SMTP server address could not be detected.\n")
			log.Warn("skipping spf policy check because the smtp server address could not be reliably detected")
			return Pass()
		}
		log.WithField("ip", ip.String()).Debug("detected the smtp server address")

		sender, domain, _ := SplitEmailAddress(opts.SenderEmail)
		checking := fmt.Sprintf("Checking the SPF policy of target domain '%s'... ", domain)
		result, err := resolver.Check(ctx, ip, domain, sender, opts.Timeout)

		const title = "Sender Policy Framework Failure"
		if errors.Is(err, ErrPolicyTimeout) {
			notifyf(c.Sink, "%sdone, failed due to DNS timeout.\n", checking)
			if c.ask(title, "Timeout on DNS query, unable to check SPF records.\n\nContinue sending messages anyways?") {
				return Pass()
			}
			return Fail("Sending aborted due to a DNS query timeout during the record check.")
		} else if err != nil {
			notifyf(c.Sink, "%sdone, encountered exception: %v.\n", checking, err)
			return Pass()
		}

		if result == PolicyNone {
			notifyf(c.Sink, "%sdone, no policy was found.\n", checking)
		} else {
			notifyf(c.Sink, "%sdone.\n", checking)
		}

		message := spfFailureMessage(opts.Level, result)
		shown, warn := string(result), ""
		if result == PolicyNone {
			shown = "N/A (No policy found)"
		}
		if strings.HasSuffix(shown, "fail") {
			warn = "WARNING: "
		}
		notifyf(c.Sink, "%sSPF policy result: %s\n", warn, shown)

		if message != "" && !c.ask(title, message+"\n\nContinue sending messages anyways?") {
			return Fail("Sending aborted due to the SPF policy.")
		}
		return Pass()
	}}
}

// Operator-facing failure for a result at a strictness level, "" when passing
func spfFailureMessage(level int, result PolicyResult) string {
	switch {
	case level == 1 && (result == PolicyFail || result == PolicySoftFail):
		return "The configuration fails the domains SPF policy.\nMessages may be marked as forged."
	case level == 2 && result != PolicyNeutral && result != PolicyPass:
		return "The configuration does not pass the domains SPF policy."
	default:
		return ""
	}
}
