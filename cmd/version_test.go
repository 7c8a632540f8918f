package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rykov/lure/config"
)

func TestVersionCmd(t *testing.T) {
	cmd := versionCmd()

	if cmd == nil {
		t.Fatal("versionCmd() returned nil")
	}

	if cmd.Use != "version" {
		t.Errorf("Expected Use to be 'version', got %s", cmd.Use)
	}

	if cmd.Short != "Print the version number of Lure" {
		t.Errorf("Expected specific short description, got %s", cmd.Short)
	}

	if cmd.Run == nil {
		t.Error("Run function should not be nil")
	}

	if cmd.RunE != nil {
		t.Error("RunE function should be nil when Run is set")
	}
}

func TestVersionCmdOutput(t *testing.T) {
	config.Build = config.BuildInfo{Version: "1.2.3", BuildDate: "today"}
	cmd := versionCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.Run(cmd, []string{})

	if s := out.String(); !strings.HasPrefix(s, "Lure Campaign Sender v1.2.3 ") || !strings.Contains(s, "(today)") {
		t.Errorf("Unexpected version output: %q", s)
	}
}

func TestVersionCmdStructure(t *testing.T) {
	cmd := versionCmd()

	if cmd.Args != nil {
		t.Error("Expected Args to be nil (no argument validation)")
	}

	if cmd.ValidArgs != nil {
		t.Error("Expected ValidArgs to be nil")
	}

	if cmd.Flags().NFlag() != 0 {
		t.Error("Expected no flags for version command")
	}
}
