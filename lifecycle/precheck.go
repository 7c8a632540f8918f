package lifecycle

import (
	log "github.com/sirupsen/logrus"

	"context"
	"fmt"
)

// Verdict of a precheck step
type Verdict int

const (
	Proceed Verdict = iota
	Abort
)

type Result struct {
	Verdict Verdict
	Message string
}

// Pass lets sending proceed
func Pass() Result {
	return Result{Verdict: Proceed}
}

// Fail aborts sending with a message for the operator
func Fail(format string, args ...any) Result {
	return Result{Verdict: Abort, Message: fmt.Sprintf(format, args...)}
}

// Step is a named validation executed before a send begins. Steps may do
// I/O but only report through the sink; they can run in any order.
type Step struct {
	Name string
	Run  func(ctx context.Context) Result
}

// Registry runs precheck steps in the order they were registered
type Registry struct {
	steps []Step
	sink  ProgressSink
}

func NewRegistry(sink ProgressSink, steps ...Step) *Registry {
	return &Registry{sink: sink, steps: steps}
}

// Register appends steps after those already registered
func (r *Registry) Register(steps ...Step) *Registry {
	r.steps = append(r.steps, steps...)
	return r
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.Name
	}
	return names
}

// RunAll executes every step and stops at the first abort,
// returning it as a *ValidationError
func (r *Registry) RunAll(ctx context.Context) error {
	for _, s := range r.steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		log.WithField("step", s.Name).Debug("running precheck routine")
		res := s.Run(ctx)
		if res.Verdict != Abort {
			continue
		}

		if res.Message != "" {
			notifyf(r.sink, "%s\n", res.Message)
		}
		return &ValidationError{Step: s.Name, Message: res.Message}
	}
	return nil
}
