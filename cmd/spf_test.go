package cmd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rykov/lure/lifecycle"
)

type stubPolicy struct {
	result lifecycle.PolicyResult
	err    error

	domain, sender string
}

func (s *stubPolicy) Check(ctx context.Context, ip net.IP, domain, sender string, timeout time.Duration) (lifecycle.PolicyResult, error) {
	s.domain, s.sender = domain, sender
	return s.result, s.err
}

func fixedAddress(ip string) func(context.Context) (net.IP, error) {
	return func(context.Context) (net.IP, error) { return net.ParseIP(ip), nil }
}

func TestSPFCmd(t *testing.T) {
	cmd := spfCmd()

	if cmd.Use != "spf [server-ip]" {
		t.Errorf("Expected Use to be 'spf [server-ip]', got %s", cmd.Use)
	}

	if err := cmd.Args(cmd, []string{"1.2.3.4", "extra"}); err == nil {
		t.Error("Expected error for extra args")
	}
}

func TestCheckSPF(t *testing.T) {
	resolver := &stubPolicy{result: lifecycle.PolicySoftFail}
	opts := lifecycle.SPFOptions{
		SenderEmail:   "it@example.com",
		ServerAddress: fixedAddress("203.0.113.9"),
	}

	var out bytes.Buffer
	if err := checkSPF(t.Context(), resolver, opts, &out); err != nil {
		t.Fatalf("checkSPF: %s", err)
	}
	if resolver.domain != "example.com" || resolver.sender != "it" {
		t.Errorf("Unexpected lookup %s@%s", resolver.sender, resolver.domain)
	}
	for _, expect := range []string{"example.com for 203.0.113.9", "soft fail"} {
		if !strings.Contains(out.String(), expect) {
			t.Errorf("Output should contain %q:\n%s", expect, out.String())
		}
	}
}

func TestCheckSPFErrors(t *testing.T) {
	testCases := []struct {
		name     string
		sender   string
		address  func(context.Context) (net.IP, error)
		resolver *stubPolicy
		expect   string
	}{
		{"invalid sender", "not-an-address", fixedAddress("203.0.113.9"), &stubPolicy{}, "Invalid source email"},
		{"no address", "it@example.com", func(context.Context) (net.IP, error) { return nil, nil }, &stubPolicy{}, "could not be detected"},
		{"lookup failure", "it@example.com", func(context.Context) (net.IP, error) { return nil, errors.New("no such host") }, &stubPolicy{}, "no such host"},
		{"timeout", "it@example.com", fixedAddress("203.0.113.9"), &stubPolicy{err: lifecycle.ErrPolicyTimeout}, lifecycle.ErrPolicyTimeout.Error()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := lifecycle.SPFOptions{SenderEmail: tc.sender, ServerAddress: tc.address}
			err := checkSPF(t.Context(), tc.resolver, opts, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tc.expect) {
				t.Errorf("Expected error containing %q, got %v", tc.expect, err)
			}
		})
	}
}
