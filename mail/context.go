package mail

import (
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"

	"fmt"
	"net/url"
)

// Shared variables for subject and body templates
type renderContext struct {
	FirstName  string
	LastName   string
	Email      string
	Department string
	UID        string

	CompanyName string

	// Web server URL carrying the message UID
	URL string

	// Invisible image reporting that the message was opened
	TrackingDot string
}

func newRenderContext(m config.MailerConfig, t *Target) (*renderContext, error) {
	ctx := &renderContext{
		FirstName:   t.FirstName,
		LastName:    t.LastName,
		Email:       t.Email,
		Department:  t.Department,
		UID:         t.UID,
		CompanyName: m.CompanyName,
	}
	if m.WebserverURL == "" {
		return ctx, nil
	}

	var err error
	if ctx.URL, err = lifecycle.InjectQueryParam(m.WebserverURL, "id", t.UID); err != nil {
		return nil, fmt.Errorf("web server url: %w", err)
	}
	dot, err := lifecycle.InjectQueryParam(trackingURL(m.WebserverURL), "id", t.UID)
	if err != nil {
		return nil, err
	}
	ctx.TrackingDot = fmt.Sprintf(`<img src="%s" style="display:none" />`, dot)
	return ctx, nil
}

// Tracking image served next to the landing page
func trackingURL(webURL string) string {
	u, err := url.Parse(webURL)
	if err != nil || u.Host == "" {
		return webURL
	}
	u.Path, u.RawQuery, u.Fragment = "/_/email_logo_banner.gif", "", ""
	return u.String()
}
