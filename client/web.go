package client

import (
	"github.com/rykov/lure/lifecycle"
	"resty.dev/v3"

	"context"
	"time"
)

// WebChecker implements lifecycle.ReachabilityChecker with a plain GET
type WebChecker struct {
	http *resty.Client
}

func NewWebChecker() *WebChecker {
	return &WebChecker{http: resty.New()}
}

func (w *WebChecker) Get(ctx context.Context, url string, timeout time.Duration) (lifecycle.Reachability, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := w.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return lifecycle.Reachability{}, err
	}
	return lifecycle.Reachability{OK: resp.IsSuccess(), Status: resp.Status()}, nil
}
