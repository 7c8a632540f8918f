package transport

import (
	"github.com/go-gomail/gomail"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/toorop/go-dkim"

	"bytes"
	"fmt"
	"io"
)

// dkimOptions reads the "dkim" configuration section
func dkimOptions(fs afero.Fs, conf map[string]interface{}) (dkim.SigOptions, error) {
	opts := dkim.NewSigOptions()

	keyFile := cast.ToString(conf["keyfile"])
	if keyFile == "" {
		return opts, fmt.Errorf("DKIM requires a keyFile")
	}
	key, err := afero.ReadFile(fs, keyFile)
	if err != nil {
		return opts, err
	}

	opts.PrivateKey = key
	opts.Domain = cast.ToString(conf["domain"])
	opts.Selector = cast.ToString(conf["selector"])
	opts.AddSignatureTimestamp = true
	opts.Canonicalization = "relaxed/relaxed"
	opts.Headers = []string{
		"Mime-Version", "To", "From", "Subject", "Reply-To",
		"Sender", "Content-Transfer-Encoding", "Content-Type",
	}

	if v, ok := conf["signatureexpirein"]; ok {
		opts.SignatureExpireIn = cast.ToUint64(v)
	}
	if v := cast.ToString(conf["canonicalization"]); v != "" {
		opts.Canonicalization = v
	}
	return opts, nil
}

// dkimSendCloser signs every message before handing it on
type dkimSendCloser struct {
	options dkim.SigOptions
	sc      gomail.SendCloser
}

func (d *dkimSendCloser) Send(from string, to []string, msg io.WriterTo) error {
	return d.sc.Send(from, to, dkimMessage{d.options, msg})
}

func (d *dkimSendCloser) Close() error {
	return d.sc.Close()
}

type dkimMessage struct {
	options dkim.SigOptions
	msg     io.WriterTo
}

func (dm dkimMessage) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	if _, err := dm.msg.WriteTo(&b); err != nil {
		return 0, err
	}

	email := b.Bytes()
	if err := dkim.Sign(&email, dm.options); err != nil {
		return 0, err
	}
	return bytes.NewBuffer(email).WriteTo(w)
}
