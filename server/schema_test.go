package server

import (
	"github.com/google/go-cmp/cmp"
	"github.com/graph-gophers/graphql-go"
	"github.com/rykov/lure/config"
	"github.com/spf13/afero"

	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const serverTestConfig = `
dryRun: true
sendRate: 0
workers: 2
smtp:
  url: %q
mailer:
  subject: "Hello {{ .FirstName }}"
  html_file: /msg/message.html
  target_type: file
  target_file: /msg/targets.csv
  source_email: it@example.com
  webserver_url: %q
`

func TestLureInfoQuery(t *testing.T) {
	cfg, _ := newTestConfigAndFs(t, "smtp://mail.example.com")

	expected := &cfg.Build
	expected.BuildDate = time.Now().String()
	expected.Version = "1.2.3"

	response := issueGraphQLQuery(NewResolver(cfg), `{
		lureInfo {
			version
			buildDate
		}
	}`)

	if errs := response.Errors; len(errs) > 0 {
		t.Fatalf("GraphQL errors %+v", errs)
	}

	resp := struct {
		LureInfo struct {
			Version   string
			BuildDate string
		}
	}{}

	if err := json.Unmarshal(response.Data, &resp); err != nil {
		t.Fatalf("JSON unmarshal error: %s", err)
	}

	actual := resp.LureInfo
	if actual.Version != expected.Version {
		t.Errorf("Invalid version: %s", actual.Version)
	}
	if actual.BuildDate != expected.BuildDate {
		t.Errorf("Invalid buildDate: %s", actual.BuildDate)
	}
}

type gqlEvent struct {
	Seq   int
	Kind  string
	Text  *string
	Done  *int
	Total *int
}

func TestSendLifecycleMutations(t *testing.T) {
	cfg, _ := newTestConfigAndFs(t, "smtp://mail.example.com")
	r := NewResolver(cfg)

	response := issueGraphQLQuery(r, `mutation { startSend { state active } }`)
	if errs := response.Errors; len(errs) > 0 {
		t.Fatalf("GraphQL errors %+v", errs)
	}

	events := waitForEvent(t, r, "finished")
	var last gqlEvent
	for _, e := range events {
		if e.Kind == "sent" {
			last = e
		}
	}
	if last.Done == nil || *last.Done != 2 || *last.Total != 2 {
		t.Errorf("Expected a 2/2 sent event, got %+v", last)
	}

	response = issueGraphQLQuery(r, `{ status { state done total active } }`)
	if errs := response.Errors; len(errs) > 0 {
		t.Fatalf("GraphQL errors %+v", errs)
	}
	resp := struct {
		Status struct {
			State  string
			Done   int
			Total  int
			Active bool
		}
	}{}
	if err := json.Unmarshal(response.Data, &resp); err != nil {
		t.Fatalf("JSON unmarshal error: %s", err)
	}
	if s := resp.Status; s.State != "idle" || s.Active {
		t.Errorf("Expected idle controller, got %+v", s)
	}

	// Polling resumes after the last seen event
	seq := events[len(events)-1].Seq
	if more := queryEvents(t, r, seq); len(more) != 0 {
		t.Errorf("Expected no new events, got %+v", more)
	}
}

func TestStartSendAborted(t *testing.T) {
	cfg, _ := newTestConfigAndFs(t, "")
	r := NewResolver(cfg)

	response := issueGraphQLQuery(r, `mutation { startSend { state } }`)
	if len(response.Errors) != 1 {
		t.Fatalf("Expected one GraphQL error, got %+v", response.Errors)
	}
	if msg := response.Errors[0].Message; !strings.Contains(msg, "precheck settings failed") {
		t.Errorf("Unexpected error: %s", msg)
	}

	events := queryEvents(t, r, 0)
	if len(events) == 0 || events[len(events)-1].Kind != "aborted" {
		t.Errorf("Expected an aborted event, got %+v", events)
	}
}

func TestControlWithoutSession(t *testing.T) {
	cfg, _ := newTestConfigAndFs(t, "smtp://mail.example.com")
	r := NewResolver(cfg)

	for _, q := range []string{
		`mutation { pauseSend { state } }`,
		`mutation { unpauseSend { state } }`,
		`mutation { stopSend(confirm: true) { state } }`,
	} {
		response := issueGraphQLQuery(r, q)
		if len(response.Errors) != 1 || response.Errors[0].Message != "no active send session" {
			t.Errorf("%s: unexpected errors %+v", q, response.Errors)
		}
	}
}

func TestCompletionURLsWithoutServer(t *testing.T) {
	cfg, _ := newTestConfigAndFs(t, "smtp://mail.example.com")
	response := issueGraphQLQuery(NewResolver(cfg), `{ completionURLs(key: "http") }`)
	if errs := response.Errors; len(errs) > 0 {
		t.Fatalf("GraphQL errors %+v", errs)
	}
	resp := struct{ CompletionURLs []string }{}
	if err := json.Unmarshal(response.Data, &resp); err != nil {
		t.Fatalf("JSON unmarshal error: %s", err)
	}
	if d := cmp.Diff([]string{}, resp.CompletionURLs); d != "" {
		t.Errorf("Unexpected completions: %s", d)
	}
}

func waitForEvent(t *testing.T, r *Resolver, kind string) []gqlEvent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		events := queryEvents(t, r, 0)
		for _, e := range events {
			if e.Kind == kind {
				return events
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %q event", kind)
	return nil
}

func queryEvents(t *testing.T, r *Resolver, after int) []gqlEvent {
	t.Helper()
	response := issueGraphQL(r, `query events($after: Int) {
		events(after: $after) { seq kind text done total }
	}`, map[string]any{"after": float64(after)})
	if errs := response.Errors; len(errs) > 0 {
		t.Fatalf("GraphQL errors %+v", errs)
	}

	resp := struct{ Events []gqlEvent }{}
	if err := json.Unmarshal(response.Data, &resp); err != nil {
		t.Fatalf("JSON unmarshal error: %s", err)
	}
	return resp.Events
}

func issueGraphQLQuery(r *Resolver, query string) *graphql.Response {
	return issueGraphQL(r, query, map[string]any{})
}

func issueGraphQL(r *Resolver, query string, vars map[string]any) *graphql.Response {
	schema := graphql.MustParseSchema(schemaText, r)
	return schema.Exec(context.TODO(), query, "", vars)
}

// Dry-run project with two targets and a reachable landing page
func newTestConfigAndFs(t *testing.T, smtpURL string) (*config.AConfig, *config.Fs) {
	t.Helper()
	return newTestConfigWithWeb(t, smtpURL, func(w http.ResponseWriter, r *http.Request) {})
}

// Test campaign whose landing page is served by web
func newTestConfigWithWeb(t *testing.T, smtpURL string, web http.HandlerFunc) (*config.AConfig, *config.Fs) {
	t.Helper()
	srv := httptest.NewServer(web)
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/config.yaml", []byte(fmt.Sprintf(serverTestConfig, smtpURL, srv.URL+"/index.html")), 0644)
	afero.WriteFile(fs, "/msg/message.html", []byte("<p>Hi {{ .FirstName }}</p>"), 0644)
	afero.WriteFile(fs, "/msg/targets.csv", []byte("first_name,last_name,email_address\nAlice,Smith,alice@example.com\nBob,Jones,bob@example.com\n"), 0644)

	cfg, err := config.LoadConfigFs(t.Context(), fs)
	if err != nil {
		t.Fatal(err)
	}
	return cfg, cfg.AppFs
}
