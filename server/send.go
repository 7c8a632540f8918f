package server

import (
	"github.com/rykov/lure/lifecycle"
	log "github.com/sirupsen/logrus"

	"archive/zip"
	"context"
	"errors"
	"fmt"
)

// ===== Send lifecycle mutations ======

// StartSend returns once sending began. Precheck and
// connection failures are returned as errors.
func (r *Resolver) StartSend(ctx context.Context) (*sendStatus, error) {
	r.mu.Lock()
	c := r.ctrl
	r.starting++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.starting--
		r.mu.Unlock()
	}()

	r.prompt.reset()
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return &sendStatus{c.Status()}, nil
}

func (r *Resolver) PauseSend(ctx context.Context) (*sendStatus, error) {
	c := r.controller()
	if err := c.Pause(); err != nil {
		return nil, err
	}
	return &sendStatus{c.Status()}, nil
}

func (r *Resolver) UnpauseSend(ctx context.Context) (*sendStatus, error) {
	c := r.controller()
	if err := c.Unpause(); err != nil {
		return nil, err
	}
	return &sendStatus{c.Status()}, nil
}

// StopSend needs confirm=true, the API's answer to "are you sure"
func (r *Resolver) StopSend(ctx context.Context, args struct{ Confirm bool }) (*sendStatus, error) {
	c := r.controller()
	if err := c.Stop(lifecycle.Answer(args.Confirm)); err != nil {
		return nil, err
	}
	return &sendStatus{c.Status()}, nil
}

type ImportMessageArgs struct {
	DestDir string
}

// ===== Use ZIP-file attachment to replace the message settings ======
func (r *Resolver) ImportMessage(ctx context.Context, args ImportMessageArgs) (bool, error) {
	file, ok := RequestZipFile(ctx)
	if !ok {
		return false, errors.New("ZIP: No file")
	}
	fi, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("ZIP: %w", err)
	}
	zr, err := zip.NewReader(file, fi.Size())
	if err != nil {
		return false, fmt.Errorf("ZIP: %w", err)
	}

	// Settings can't change under a starting or running session
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.starting > 0 || r.ctrl.Status().Active {
		return false, lifecycle.ErrSessionActive
	}

	if err := r.cfg.ImportMessageBundleZip(zr, args.DestDir); err != nil {
		return false, err
	}
	r.ctrl = r.newController()

	log.WithField("dir", args.DestDir).Info("Imported message settings")
	return true, nil
}
