package server

import (
	"github.com/rykov/lure/client"
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	"github.com/rykov/lure/mail"
	log "github.com/sirupsen/logrus"

	"context"
	"sync"
)

// ===== ROOT QUERY RESOLVER ======

// Resolver drives one send controller for the control API
type Resolver struct {
	cfg    *config.AConfig
	events *EventLog
	prompt *configPrompt
	urls   *client.URLCompleter

	mu   sync.Mutex
	ctrl *lifecycle.Controller

	// startSend calls that have not returned yet
	starting int
}

func NewResolver(cfg *config.AConfig) *Resolver {
	r := &Resolver{
		cfg:    cfg,
		events: NewEventLog(eventLogSize),
		prompt: &configPrompt{cfg: cfg},
	}
	if cfg.Server.URL != "" {
		r.urls = client.NewURLCompleter(cfg, client.NewBackend(cfg))
	}
	r.ctrl = r.newController()
	return r
}

// Controller settings are read once, so every message
// import gets a fresh controller
func (r *Resolver) newController() *lifecycle.Controller {
	return mail.NewController(r.cfg, mail.Frontend{
		Sink: lifecycle.MultiSink{
			r.events,
			lifecycle.LogSink{Entry: log.WithField("component", "server")},
		},
		Prompt:  r.prompt,
		Decider: lifecycle.Answer(r.cfg.Control.ContinueOnWarning),
	})
}

func (r *Resolver) controller() *lifecycle.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl
}

// Exit stops a live session before the server shuts down
func (r *Resolver) Exit() {
	r.controller().Exit()
}

func (r *Resolver) Status(ctx context.Context) *sendStatus {
	return &sendStatus{r.controller().Status()}
}

func (r *Resolver) Events(ctx context.Context, args struct{ After *int32 }) []*sendEvent {
	var after int32
	if args.After != nil {
		after = *args.After
	}

	out := []*sendEvent{}
	for _, e := range r.events.After(after) {
		out = append(out, &sendEvent{e})
	}
	return out
}

func (r *Resolver) CompletionURLs(ctx context.Context, args struct{ Key string }) []string {
	if r.urls == nil {
		return []string{}
	}
	out := r.urls.Complete(ctx, args.Key)
	if out == nil {
		out = []string{}
	}
	return out
}

// ===== Send status TYPE ======

type sendStatus struct {
	s lifecycle.Status
}

func (s *sendStatus) State() string {
	return s.s.State.String()
}

func (s *sendStatus) Done() int32 {
	return int32(s.s.Done)
}

func (s *sendStatus) Total() int32 {
	return int32(s.s.Total)
}

func (s *sendStatus) Active() bool {
	return s.s.Active
}

// ===== Build/Version information =====

func (r *Resolver) LureInfo(ctx context.Context) *lureInfo {
	return &lureInfo{r.cfg.Build}
}

type lureInfo struct {
	b config.BuildInfo
}

func (i *lureInfo) Version() string {
	return i.b.Version
}

func (i *lureInfo) BuildDate() string {
	return i.b.BuildDate
}
