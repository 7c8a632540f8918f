package transport

import (
	"github.com/go-gomail/gomail"
	"github.com/rykov/lure/lifecycle"
	"github.com/spf13/afero"

	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"strings"
	"testing"
)

func generateTestKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Bytes: x509.MarshalPKCS1PrivateKey(key),
		Type:  "RSA PRIVATE KEY",
	})
}

func testMessage() *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", "it@example.com")
	m.SetHeader("To", "alice@example.com")
	m.SetHeader("Subject", "Quarterly review")
	m.SetBody("text/html", "<p>Hello Alice</p>")
	m.Attach("report.pdf", gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write([]byte("%PDF-1.4"))
		return err
	}))
	return m
}

func TestDryRunWithDKIM(t *testing.T) {
	tr := testTransport(t, "smtp://mx.example.com")
	afero.WriteFile(tr.cfg.AppFs, "/dkim.key", generateTestKeyPEM(t), 0600)
	tr.cfg.DryRun = true
	tr.cfg.DKIM = map[string]interface{}{
		"keyfile":  "/dkim.key",
		"domain":   "example.com",
		"selector": "lure",
	}

	var out bytes.Buffer
	tr.DryRunOutput = &out
	if o := tr.ConnectPrimary(t.Context(), lifecycle.Credentials{}); o != lifecycle.Success {
		t.Fatalf("Expected success, got %s", o)
	}

	conn, err := tr.NewConn()
	if err != nil {
		t.Fatalf("NewConn failed: %s", err)
	}
	if err := gomail.Send(conn, testMessage()); err != nil {
		t.Fatalf("Send failed: %s", err)
	}

	raw := out.String()
	if !strings.Contains(raw, "DKIM-Signature:") || !strings.Contains(raw, "d=example.com") {
		t.Errorf("Message is not signed:\n%s", raw)
	}

	sent := tr.DryRunSent()
	if len(sent) != 1 {
		t.Fatalf("Expected one summary, got %d", len(sent))
	}
	if s := sent[0]; s.Subject != "Quarterly review" || s.From != "it@example.com" || len(s.Attachments) != 1 || s.Attachments[0] != "report.pdf" {
		t.Errorf("Unexpected summary: %+v", s)
	}
}

func TestDKIMMissingKey(t *testing.T) {
	tr := testTransport(t, "smtp://mx.example.com")
	tr.cfg.DryRun = true
	tr.cfg.DKIM = map[string]interface{}{"domain": "example.com"}

	if o := tr.ConnectPrimary(t.Context(), lifecycle.Credentials{}); o != lifecycle.ConnectFailed {
		t.Errorf("Expected connect failure, got %s", o)
	}
}
