package cmd

import (
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
)

const (
	// Control API route
	serverGraphQLPath = "/graphql"
)

func serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Launch the control API for send sessions",
		Long: `Serves a GraphQL API to start, pause, resume and stop sending,
follow progress events and push new message bundles.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return startAPIServer(ctx, cfg, nil)
		},
	}
}

// Function is called before booting the server to configure
// additional routes for mux, and to provide "ready" hooks
type configFunc func(*http.ServeMux, chan net.Addr) error

func startAPIServer(ctx context.Context, cfg *config.AConfig, configFn configFunc) error {
	resolver := server.NewResolver(cfg)
	defer resolver.Exit()

	mux := http.NewServeMux()
	mux.Handle(serverGraphQLPath, server.WithMiddleware(server.GraphQLHandler(resolver), cfg))

	// Append additional routes
	var ready chan net.Addr
	if configFn != nil {
		ready = make(chan net.Addr, 1)
		if err := configFn(mux, ready); err != nil {
			return err
		}
	}

	s := &http.Server{Handler: mux}
	s.Addr = fmt.Sprintf(":%d", cfg.Control.Port)

	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}

	// Notify listeners with the bound address
	if ready != nil {
		ready <- l.Addr()
		close(ready)
	}

	go func() {
		<-ctx.Done()
		s.Shutdown(context.WithoutCancel(ctx))
	}()

	log.WithField("addr", l.Addr().String()).Info("Control API listening")
	if cfg.Control.Auth == "" {
		log.Warn("Control API has no authentication (control.auth)")
	}
	if err := s.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
