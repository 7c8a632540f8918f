package mail

import (
	"github.com/rykov/lure/config"

	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const defaultUIDLength = 16

var errNoUIDCharset = errors.New("no message UID character set is enabled")

func uidCharset(c config.CharsetFlag) string {
	var b strings.Builder
	if c.Digits {
		b.WriteString("0123456789")
	}
	if c.Lower {
		b.WriteString("abcdefghijklmnopqrstuvwxyz")
	}
	if c.Upper {
		b.WriteString("ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	return b.String()
}

// makeUID draws a random message UID from the enabled character sets
func makeUID(cfg config.MessageUIDConfig) (string, error) {
	charset := uidCharset(cfg.Charset)
	if charset == "" {
		return "", errNoUIDCharset
	}
	length := cfg.Length
	if length <= 0 {
		length = defaultUIDLength
	}

	max := big.NewInt(int64(len(charset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
