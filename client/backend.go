// Package client talks to the campaign server and to the
// control API of a running lure server.
package client

import (
	"github.com/cenkalti/backoff/v5"
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	log "github.com/sirupsen/logrus"
	"resty.dev/v3"

	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Landing page registration attempts
const registerTries = 5

var ErrNoServer = errors.New("campaign server url is not configured")

// Backend is the REST client of the campaign server.
// It implements lifecycle.CampaignBackend.
type Backend struct {
	http    *resty.Client
	baseURL string
}

func NewBackend(cfg *config.AConfig) *Backend {
	r := resty.New().
		SetBaseURL(cfg.Server.URL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")
	if t := cfg.Server.APIToken; t != "" {
		r.SetAuthToken(t)
	}
	return &Backend{http: r, baseURL: cfg.Server.URL}
}

type campaignJSON struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Company    string     `json:"company"`
	Expiration *time.Time `json:"expiration"`
}

func (b *Backend) GetCampaign(ctx context.Context, id string) (*lifecycle.Campaign, error) {
	if b.baseURL == "" {
		return nil, ErrNoServer
	}

	var out campaignJSON
	resp, err := b.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/api/campaigns/{id}")
	if err := responseError(resp, err); err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", id, err)
	}

	return &lifecycle.Campaign{
		ID:         out.ID,
		Name:       out.Name,
		Company:    out.Company,
		Expiration: out.Expiration,
	}, nil
}

// RegisterLandingPage retries with exponential backoff
// until the server accepts or rejects the page
func (b *Backend) RegisterLandingPage(ctx context.Context, campaignID, hostname, page string) error {
	if b.baseURL == "" {
		return ErrNoServer
	}

	op := func() (struct{}, error) {
		resp, err := b.http.R().
			SetContext(ctx).
			SetPathParam("id", campaignID).
			SetBody(map[string]string{"hostname": hostname, "page": page}).
			Post("/api/campaigns/{id}/landing_pages")
		err = responseError(resp, err)
		if resp != nil && resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(registerTries),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.WithError(err).Debugf("Retrying landing page registration in %s", d)
		}),
	)
	return err
}

// SiteTemplate is a site hosted by the campaign server
type SiteTemplate struct {
	Hostname string   `json:"hostname"`
	Path     string   `json:"path"`
	Pages    []string `json:"pages"`
}

func (b *Backend) SiteTemplates(ctx context.Context) ([]SiteTemplate, error) {
	if b.baseURL == "" {
		return nil, ErrNoServer
	}

	var out []SiteTemplate
	resp, err := b.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/site_templates")
	if err := responseError(resp, err); err != nil {
		return nil, fmt.Errorf("get site templates: %w", err)
	}
	return out, nil
}

// non‐2xx → treat as error
func responseError(resp *resty.Response, err error) error {
	if err != nil {
		return err
	} else if resp.IsError() {
		if resp.StatusCode() == http.StatusNotFound {
			return fmt.Errorf("server returned %s", resp.Status())
		}
		return fmt.Errorf("server returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}
