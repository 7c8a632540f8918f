package client

import (
	"resty.dev/v3"

	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

const importGQL = `
  mutation importMessage($destDir: String!) {
    importMessage(destDir: $destDir)
  }
`

// Control is a client of the control API of "lure server"
type Control struct {
	context   context.Context
	serverURL string
	auth      string
}

// NewControl targets serverURL, with "user:pass" basic auth when set
func NewControl(ctx context.Context, serverURL, auth string) *Control {
	return &Control{ctx, serverURL, auth}
}

// PushMessage uploads a message bundle written by writeBundle to the
// server, which extracts its files into destDir
func (c *Control) PushMessage(destDir string, writeBundle func(io.Writer) error) error {
	pr, ct := streamZipToMultipart(writeBundle, func(mw *multipart.Writer) error {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", "application/json")
		part, err := mw.CreatePart(header)
		if err != nil {
			return err
		}

		return json.NewEncoder(part).Encode(map[string]any{
			"operationName": "importMessage",
			"query":         importGQL,
			"variables": map[string]any{
				"destDir": destDir,
			},
		})
	})

	// Capture GraphQL errors
	var output gqlErrorResponse

	req := resty.New().R().
		SetContext(c.context).
		SetHeader("Content-Type", ct).
		SetResult(&output).
		SetBody(pr)
	if user, pass, ok := cutAuth(c.auth); ok {
		req.SetBasicAuth(user, pass)
	}
	resp, err := req.Post(c.serverURL)

	// non‐2xx → treat as error
	if err != nil {
		return err
	} else if e := output.Errors; len(e) > 0 {
		return fmt.Errorf("server error: %s", e[0].Message)
	} else if resp.IsError() {
		return fmt.Errorf("server returned %s: %s",
			resp.Status(),
			resp.String(),
		)
	}

	return nil
}

func cutAuth(auth string) (user, pass string, ok bool) {
	if auth == "" {
		return "", "", false
	}
	user, pass, _ = strings.Cut(auth, ":")
	return user, pass, true
}

// Common GQL error response
type gqlErrorResponse struct {
	Errors []struct {
		Path    []string
		Message string
	}
}

// Create a pipe: the ZIP writer writes to pw, and resty reads from pr.
func streamZipToMultipart(writeZip func(io.Writer) error, callback func(*multipart.Writer) error) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		// Create a single zip-file part
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", "application/zip")
		part, err := mw.CreatePart(header)
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		// Stream the ZIP into that part
		mwErr := writeZip(part)

		// Callback to add more parts
		if callback != nil {
			mwErr = errors.Join(mwErr, callback(mw))
		}

		// Flush the closing boundary, then propagate any error to the reader side
		mwErr = errors.Join(mwErr, mw.Close())
		if mwErr != nil {
			pw.CloseWithError(mwErr)
		} else {
			pw.Close()
		}
	}()

	return pr, mw.FormDataContentType()
}
