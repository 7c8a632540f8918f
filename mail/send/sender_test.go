package send

import (
	"github.com/go-gomail/gomail"

	"context"
	"errors"
	"strings"
	"testing"
)

func TestWithRetry(t *testing.T) {
	attempts := 0
	flaky := &mockSender{connFunc: func() (Conn, error) {
		if attempts++; attempts < 2 {
			return nil, errors.New("connection reset")
		}
		return &mockConn{}, nil
	}}

	conn, err := WithRetry(context.Background(), flaky, 3).NewConn()
	if err != nil {
		t.Fatalf("NewConn failed: %s", err)
	} else if conn == nil {
		t.Fatal("NewConn returned nil connection")
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	attempts := 0
	broken := &mockSender{connFunc: func() (Conn, error) {
		attempts++
		return nil, errors.New("refused")
	}}

	if _, err := WithRetry(context.Background(), broken, 2).NewConn(); err == nil {
		t.Error("NewConn should fail")
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestTestSender(t *testing.T) {
	s := NewTestSender()
	conn, _ := s.NewConn()

	m := gomail.NewMessage()
	m.SetHeader("From", "it@example.com")
	m.SetHeader("To", "alice@example.com")
	m.SetHeader("Subject", "Hi")
	m.SetBody("text/plain", "Hello")

	if err := gomail.Send(conn, m); err != nil {
		t.Fatalf("Send failed: %s", err)
	}
	if s.Count() != 1 || !strings.Contains(string(s.Mails[0]), "Subject: Hi") {
		t.Errorf("Unexpected mails: %q", s.Mails)
	}
	if rcpt := s.Rcpts[0]; len(rcpt) != 1 || rcpt[0] != "alice@example.com" {
		t.Errorf("Unexpected recipients: %v", rcpt)
	}
}
