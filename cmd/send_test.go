package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	"github.com/rykov/lure/mail"
	"github.com/spf13/afero"
)

func TestSendCmd(t *testing.T) {
	cmd := sendCmd()

	if cmd == nil {
		t.Fatal("sendCmd() returned nil")
	}

	if cmd.Use != "send" {
		t.Errorf("Expected Use to be 'send', got %s", cmd.Use)
	}

	if cmd.Short != "Check the campaign and send its messages" {
		t.Errorf("Unexpected Short: %s", cmd.Short)
	}

	if err := cmd.Args(cmd, []string{"extra"}); err == nil {
		t.Error("Expected error for extra args")
	}

	if cmd.RunE == nil {
		t.Error("RunE function should not be nil")
	}
}

const sendTestConfig = `
dryRun: true
sendRate: 0
smtp:
  url: smtp://mail.example.com
mailer:
  subject: "Hi {{ .FirstName }}"
  html_file: /msg/message.html
  target_type: file
  target_file: /msg/targets.csv
  source_email: it@example.com
  webserver_url: %q
`

// Dry-run campaign with a reachable landing page
func newSendTestConfig(t *testing.T, targets int, web http.HandlerFunc) *config.AConfig {
	t.Helper()
	srv := httptest.NewServer(web)
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/config.yaml", []byte(fmt.Sprintf(sendTestConfig, srv.URL)), 0644)
	afero.WriteFile(fs, "/msg/message.html", []byte("<p>Hi</p>"), 0644)

	var csv strings.Builder
	csv.WriteString("first_name,email_address\n")
	for i := 0; i < targets; i++ {
		fmt.Fprintf(&csv, "User%d,user%d@example.com\n", i, i)
	}
	afero.WriteFile(fs, "/msg/targets.csv", []byte(csv.String()), 0644)

	cfg, err := config.LoadConfigFs(t.Context(), fs)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

// Dry-run controller wired to a console reading from in
func newTestSession(t *testing.T, targets int, rate float32, in io.Reader) (*lifecycle.Controller, *console, *consoleSink, *syncWriter) {
	t.Helper()
	cfg := newSendTestConfig(t, targets, func(w http.ResponseWriter, r *http.Request) {})
	cfg.SendRate = rate

	out := &syncWriter{}
	con := newConsole(in, out)
	sink := newConsoleSink(out)
	ctrl := mail.NewController(cfg, mail.Frontend{Sink: sink, Prompt: con, Decider: con})
	return ctrl, con, sink, out
}

func TestRunSessionFinishes(t *testing.T) {
	ctrl, con, sink, out := newTestSession(t, 3, 0, strings.NewReader(""))

	if err := runSession(context.Background(), ctrl, con, sink, nil); err != nil {
		t.Fatalf("runSession: %s", err)
	}
	for _, expect := range []string{"Sent 3/3 messages (100%)", "Finished sending."} {
		if !strings.Contains(out.String(), expect) {
			t.Errorf("Output should contain %q:\n%s", expect, out.String())
		}
	}
}

func TestRunSessionStopCommand(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctrl, con, sink, out := newTestSession(t, 50, 5, pr)

	done := make(chan error, 1)
	go func() { done <- runSession(context.Background(), ctrl, con, sink, nil) }()

	// Declined stop keeps sending, confirmed stop ends the session
	for _, line := range []string{"pause", "resume", "stop", "n", "stop", "y"} {
		io.WriteString(pw, line+"\n")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runSession: %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the session to stop")
	}

	for _, expect := range []string{"Paused.", "Resumed.", "Still sending.", "Sending stopped."} {
		if !strings.Contains(out.String(), expect) {
			t.Errorf("Output should contain %q:\n%s", expect, out.String())
		}
	}
}

func TestRunSessionInterrupt(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctrl, con, sink, out := newTestSession(t, 50, 5, pr)

	sigs := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- runSession(context.Background(), ctrl, con, sink, sigs) }()

	// Wait for the command loop before interrupting
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), sendCommands) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	sigs <- os.Interrupt
	io.WriteString(pw, "yes\n")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runSession: %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the session to exit")
	}
	if !strings.Contains(out.String(), "Are you sure you want to exit?") {
		t.Errorf("Expected exit confirmation:\n%s", out.String())
	}
}

func TestRunSessionAborted(t *testing.T) {
	ctrl, con, sink, _ := newTestSession(t, 0, 0, strings.NewReader(""))
	if err := runSession(context.Background(), ctrl, con, sink, nil); err == nil {
		t.Error("Session without targets should fail")
	}
}

func TestSessionCommandUnknown(t *testing.T) {
	ctrl, con, _, _ := newTestSession(t, 1, 0, strings.NewReader(""))
	if err := sessionCommand(ctrl, con, "explode"); err == nil || !strings.Contains(err.Error(), sendCommands) {
		t.Errorf("Expected usage error, got %v", err)
	}
	if err := sessionCommand(ctrl, con, "pause"); err != lifecycle.ErrNoSession {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
}
