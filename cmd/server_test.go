package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rykov/lure/config"
	"github.com/spf13/afero"
)

func TestServerCmd(t *testing.T) {
	cmd := serverCmd()

	if cmd == nil {
		t.Fatal("serverCmd() returned nil")
	}

	if cmd.Use != "server" {
		t.Errorf("Expected Use to be 'server', got %s", cmd.Use)
	}

	if cmd.Short != "Launch the control API for send sessions" {
		t.Errorf("Expected specific short description, got %s", cmd.Short)
	}

	if cmd.RunE == nil {
		t.Error("RunE function should not be nil")
	}

	if cmd.Run != nil {
		t.Error("Run function should be nil when RunE is set")
	}
}

func TestServerConstants(t *testing.T) {
	if serverGraphQLPath != "/graphql" {
		t.Errorf("Expected serverGraphQLPath to be '/graphql', got %q", serverGraphQLPath)
	}
}

// Boots the control API on a random port and returns its GraphQL URL
func startTestAPIServer(t *testing.T, auth string) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	cfg, err := config.LoadConfigFs(t.Context(), afero.NewMemMapFs())
	if err != nil {
		t.Fatal(err)
	}
	cfg.Control.Port = 0
	cfg.Control.Auth = auth

	ctx, cancel := context.WithCancel(context.Background())
	addrs := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- startAPIServer(ctx, cfg, func(mux *http.ServeMux, ready chan net.Addr) error {
			go func() {
				if a, ok := <-ready; ok {
					addrs <- a
				}
			}()
			return nil
		})
	}()

	select {
	case a := <-addrs:
		port := a.(*net.TCPAddr).Port
		return fmt.Sprintf("http://127.0.0.1:%d%s", port, serverGraphQLPath), cancel, done
	case err := <-done:
		cancel()
		t.Fatalf("startAPIServer: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("Timed out waiting for the server")
	}
	return "", cancel, done
}

func TestStartAPIServer(t *testing.T) {
	url, cancel, done := startTestAPIServer(t, "")

	body := strings.NewReader(`{"query":"{ lureInfo { version } status { state } }"}`)
	resp, err := http.Post(url, "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	// Canceling the context shuts the server down cleanly
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for shutdown")
	}
}

func TestStartAPIServerAuth(t *testing.T) {
	url, cancel, _ := startTestAPIServer(t, "admin:s3cret")
	defer cancel()

	query := `{"query":"{ status { state } }"}`
	resp, err := http.Post(url, "application/json", strings.NewReader(query))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("POST", url, strings.NewReader(query))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("admin", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with credentials, got %d", resp.StatusCode)
	}
}
