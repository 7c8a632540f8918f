package server

import (
	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/rykov/lure/config"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/negroni/v3"

	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
)

type ctxKey int

const (
	ctxZipFileKey ctxKey = iota
)

// Largest accepted multipart request, bundle included
const maxUploadSize = 64 << 20

var errSecondBundle = errors.New("only one message bundle per request")

// MustSchemaHandler serves the schema as JSON GraphQL, or as a multipart
// form carrying the request and an optional message bundle
func MustSchemaHandler(schema string, resolver any) http.Handler {
	s := graphql.MustParseSchema(schema, resolver)
	return &controlHandler{relay: &relay.Handler{Schema: s}}
}

type controlHandler struct {
	relay *relay.Handler
}

func (h *controlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.relay.ServeHTTP(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	params, bundle, err := parseMultipartGQL(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if bundle != nil {
		defer os.Remove(bundle.Name())
		defer bundle.Close()
	}
	if params == nil {
		http.Error(w, "No GraphQL request in form", http.StatusBadRequest)
		return
	}

	// Resolvers find the bundle in the context
	ctx := r.Context()
	if bundle != nil {
		ctx = context.WithValue(ctx, ctxZipFileKey, bundle)
	}

	response := h.relay.Schema.Exec(ctx, params.Query, params.OperationName, params.Variables)
	out, err := json.Marshal(response)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

// RequestZipFile is the message bundle uploaded with the request
func RequestZipFile(ctx context.Context) (*os.File, bool) {
	f, ok := ctx.Value(ctxZipFileKey).(*os.File)
	return f, ok
}

// parseMultipartGQL reads the JSON request part and spools the zip part
// to a temporary file. Other parts are skipped.
func parseMultipartGQL(r *http.Request) (params *gqlRequestParams, bundle *os.File, err error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, err
	}

	// Drop the spooled bundle on any failure
	defer func() {
		if err != nil && bundle != nil {
			bundle.Close()
			os.Remove(bundle.Name())
			bundle = nil
		}
	}()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return params, bundle, nil
		} else if err != nil {
			return nil, bundle, err
		}

		switch part.Header.Get("Content-Type") {
		case "application/json":
			params = &gqlRequestParams{}
			if err := json.NewDecoder(part).Decode(params); err != nil {
				return nil, bundle, err
			}

		case "application/zip":
			if bundle != nil {
				return nil, bundle, errSecondBundle
			}
			if bundle, err = spoolBundle(part); err != nil {
				return nil, nil, err
			}

		default:
			if _, err := io.Copy(io.Discard, part); err != nil {
				return nil, bundle, err
			}
		}
	}
}

func spoolBundle(part io.Reader) (*os.File, error) {
	f, err := os.CreateTemp("", "lure-zip")
	if err != nil {
		return nil, err
	}
	_, err1 := io.Copy(f, part)
	_, err2 := f.Seek(0, io.SeekStart)
	if err := errors.Join(err1, err2); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}

type gqlRequestParams struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// WithMiddleware adds recovery and request logging, and basic auth
// when control.auth is set
func WithMiddleware(h http.Handler, cfg *config.AConfig) http.Handler {
	n := negroni.New(negroni.NewRecovery(), negroni.NewLogger())
	if cfg != nil && cfg.Control.Auth != "" {
		n.UseFunc(basicAuth(cfg.Control.Auth))
	}
	n.UseHandler(h)
	return n
}

func basicAuth(userPass string) negroni.HandlerFunc {
	expU, expP, _ := strings.Cut(userPass, ":")
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		if u, p, ok := r.BasicAuth(); ok {
			okU := subtle.ConstantTimeCompare([]byte(u), []byte(expU)) == 1
			okP := subtle.ConstantTimeCompare([]byte(p), []byte(expP)) == 1
			if okU && okP {
				next(rw, r)
				return
			}
		}

		log.WithField("remote", r.RemoteAddr).Warn("Rejected control API request")
		rw.Header().Set("WWW-Authenticate", `Basic realm="lure"`)
		s := http.StatusUnauthorized
		http.Error(rw, http.StatusText(s), s)
	}
}
