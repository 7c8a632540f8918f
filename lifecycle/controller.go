package lifecycle

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// State of the send lifecycle
type State int

const (
	Idle State = iota
	Prechecking
	Connecting
	Sending
	Paused
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Prechecking:
		return "prechecking"
	case Connecting:
		return "connecting"
	case Sending:
		return "sending"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Session is created for every Start by the controller's session factory
type Session struct {
	Sender    Sender
	Transport Transport
	Prechecks []Step
}

// ControllerConfig holds the settings the controller reads itself
type ControllerConfig struct {
	CampaignID     string
	WebserverURL   string
	MessageType    string
	RequiresTunnel bool
	PrimaryLogin   bool
}

// Status is a snapshot of the controller
type Status struct {
	State  State
	Done   int
	Total  int
	Active bool
}

// Controller owns at most one send session and drives it from prechecks
// to a terminal event. Every terminal transition returns it to Idle and
// reaches the sink as Finished, Stopped or Aborted.
type Controller struct {
	Config     ControllerConfig
	NewSession func(ctx context.Context) (*Session, error)
	Backend    CampaignBackend
	Prompt     CredentialPrompt
	Decider    Decider
	Sink       ProgressSink
	Now        func() time.Time

	mu      sync.Mutex
	state   State
	current *session

	// Pending landing page registrations
	landing sync.WaitGroup
}

type session struct {
	sender Sender
	done   int
	total  int
}

const sendingTitle = "Lure Is Sending Messages"

// Start runs the prechecks, connects and starts the sender. It returns
// once sending began or the session was aborted.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	sess := &session{}
	c.current, c.state = sess, Prechecking
	c.mu.Unlock()

	parts, err := c.NewSession(ctx)
	if err != nil {
		return c.abort(sess, nil, fmt.Errorf("create sender: %w", err))
	}
	c.mu.Lock()
	sess.sender = parts.Sender
	c.mu.Unlock()

	if err := NewRegistry(c.Sink, parts.Prechecks...).RunAll(ctx); err != nil {
		return c.abort(sess, parts.Sender, err)
	}

	notifyf(c.Sink, "Sending messages started at: %s\n", c.now().Format("Monday January 02, 2006 15:04:05"))
	notifyf(c.Sink, "Message mode is: %s\n", messageMode(c.Config.MessageType))

	c.setState(sess, Connecting)
	neg := &Negotiator{
		Transport:    parts.Transport,
		Prompt:       c.Prompt,
		Sink:         c.Sink,
		PrimaryLogin: c.Config.PrimaryLogin,
	}
	if err := neg.Connect(ctx, c.Config.RequiresTunnel); err != nil {
		return c.abort(sess, parts.Sender, err)
	}

	c.registerLandingPage(context.WithoutCancel(ctx))

	// Sending outlives the request that started it
	c.setState(sess, Sending)
	if err := parts.Sender.Start(context.WithoutCancel(ctx), &sessionSink{c: c, sess: sess}); err != nil {
		return c.abort(sess, parts.Sender, fmt.Errorf("start sender: %w", err))
	}
	return nil
}

// Pause is immediate and idempotent
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sendingLocked(); err != nil {
		return err
	}
	if c.state == Sending {
		c.current.sender.Pause()
		c.state = Paused
	}
	return nil
}

// Unpause is idempotent
func (c *Controller) Unpause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sendingLocked(); err != nil {
		return err
	}
	if c.state == Paused {
		c.current.sender.Unpause()
		c.state = Sending
	}
	return nil
}

// Stop asks confirm before forwarding the stop request. A declined
// confirmation returns ErrCanceled. The session ends when the sender
// reports Stopped.
func (c *Controller) Stop(confirm Decider) error {
	c.mu.Lock()
	sess := c.current
	err := c.sendingLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if confirm != nil && !confirm.AskYesNo(sendingTitle, "Are you sure you want to stop?") {
		return ErrCanceled
	}

	c.mu.Lock()
	if c.current != sess || c.state == Stopping {
		c.mu.Unlock()
		return nil
	}
	c.state = Stopping
	c.mu.Unlock()

	log.WithField("component", "lifecycle").Info("stopping the sender")
	sess.sender.Stop()
	return nil
}

// ConfirmExit is false when the operator declines exiting during a send
func (c *Controller) ConfirmExit() bool {
	if !c.senderAlive() {
		return true
	}
	return c.Decider != nil && c.Decider.AskYesNo(sendingTitle, "Are you sure you want to exit?")
}

// Exit stops a live sender before the host application exits
func (c *Controller) Exit() {
	c.mu.Lock()
	var s Sender
	if c.current != nil {
		s = c.current.sender
	}
	c.mu.Unlock()

	if s != nil && s.IsAlive() {
		log.WithField("component", "lifecycle").Info("stopping the sender because the client is exiting")
		s.Stop()
	}
	c.landing.Wait()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state, Active: c.current != nil}
	if c.current != nil {
		st.Done, st.Total = c.current.done, c.current.total
	}
	return st
}

func (c *Controller) senderAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.sender != nil && c.current.sender.IsAlive()
}

// Requires c.mu
func (c *Controller) sendingLocked() error {
	switch {
	case c.current == nil:
		return ErrNoSession
	case c.state == Prechecking, c.state == Connecting:
		return ErrNotSending
	}
	return nil
}

func (c *Controller) setState(sess *session, s State) {
	c.mu.Lock()
	if c.current == sess {
		c.state = s
	}
	c.mu.Unlock()
}

// abort ends a session that never started sending
func (c *Controller) abort(sess *session, s Sender, err error) error {
	if s != nil {
		if s.IsAlive() {
			s.Stop()
		}
		if cl, ok := s.(io.Closer); ok {
			cl.Close()
		}
	}

	c.mu.Lock()
	if c.current == sess {
		c.current, c.state = nil, Idle
	}
	c.mu.Unlock()

	log.WithField("component", "lifecycle").WithError(err).Warn("send session aborted")
	if c.Sink != nil {
		c.Sink.Notify(Aborted{Reason: err.Error()})
	}
	return err
}

func (c *Controller) registerLandingPage(ctx context.Context) {
	if c.Backend == nil {
		return
	}
	hostname, page, err := LandingPage(c.Config.WebserverURL)
	if err != nil {
		log.WithError(err).Warn("can not parse the web server url for the landing page")
		return
	}

	c.landing.Add(1)
	go func() {
		defer c.landing.Done()
		if err := c.Backend.RegisterLandingPage(ctx, c.Config.CampaignID, hostname, page); err != nil {
			log.WithFields(log.Fields{
				"hostname": hostname,
				"page":     page,
			}).WithError(err).Warn("failed to register the landing page")
		}
	}()
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// "calendar_invite" -> "Calendar Invite"
func messageMode(t string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(t, "_", " "))
}

// sessionSink tracks counters and ends the session on terminal events
type sessionSink struct {
	c    *Controller
	sess *session
}

func (s *sessionSink) Notify(e Event) {
	c := s.c
	c.mu.Lock()
	if c.current != s.sess {
		c.mu.Unlock()
		return
	}
	if sc, ok := e.(SentCount); ok {
		s.sess.done, s.sess.total = sc.Done, sc.Total
	}
	if e.Terminal() {
		c.current, c.state = nil, Idle
	}
	c.mu.Unlock()

	if c.Sink != nil {
		c.Sink.Notify(e)
	}
}
