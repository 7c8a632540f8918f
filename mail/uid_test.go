package mail

import (
	"github.com/rykov/lure/config"

	"errors"
	"strings"
	"testing"
)

func TestMakeUID(t *testing.T) {
	cases := []struct {
		charset config.CharsetFlag
		length  int
		allowed string
		size    int
	}{
		{config.CharsetFlag{Digits: true}, 8, "0123456789", 8},
		{config.CharsetFlag{Upper: true}, 0, "ABCDEFGHIJKLMNOPQRSTUVWXYZ", defaultUIDLength},
		{config.CharsetFlag{Lower: true, Digits: true}, 32, "0123456789abcdefghijklmnopqrstuvwxyz", 32},
	}

	for _, c := range cases {
		uid, err := makeUID(config.MessageUIDConfig{Length: c.length, Charset: c.charset})
		if err != nil {
			t.Fatalf("makeUID: %s", err)
		}
		if len(uid) != c.size {
			t.Errorf("Expected length %d, got %q", c.size, uid)
		}
		if strings.Trim(uid, c.allowed) != "" {
			t.Errorf("UID %q has characters outside %q", uid, c.allowed)
		}
	}
}

func TestMakeUIDNoCharset(t *testing.T) {
	_, err := makeUID(config.MessageUIDConfig{Length: 8})
	if !errors.Is(err, errNoUIDCharset) {
		t.Errorf("Expected errNoUIDCharset, got %v", err)
	}
}
