package cmd

import (
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	"github.com/rykov/lure/mail"
	"github.com/spf13/cobra"

	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
)

const sendCommands = "Commands: pause, resume, stop, status"

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "send",
		Short:   "Check the campaign and send its messages",
		Example: "lure send --config acme-spring-review/config.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}

			con := newConsole(cmd.InOrStdin(), cmd.OutOrStdout())
			sink := newConsoleSink(cmd.OutOrStdout())
			ctrl := mail.NewController(cfg, mail.Frontend{
				Sink:    sink,
				Prompt:  con,
				Decider: con,
			})

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt)
			defer signal.Stop(sigs)

			return runSession(cmd.Context(), ctrl, con, sink, sigs)
		},
	}
}

// runSession starts one session and drives it from console commands
// until it ends. An interrupt cancels prechecks and connecting; while
// sending it asks before stopping.
func runSession(ctx context.Context, ctrl *lifecycle.Controller, con *console, sink *consoleSink, sigs <-chan os.Signal) error {
	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := make(chan error, 1)
	go func() { started <- ctrl.Start(startCtx) }()

	for waiting := true; waiting; {
		select {
		case err := <-started:
			if err != nil {
				return err
			}
			waiting = false
		case sig := <-sigs:
			fmt.Fprintf(con.out, "Canceling on %s\n", sig)
			cancel()
		}
	}

	fmt.Fprintln(con.out, sendCommands)
	lines := con.listen()
	for {
		select {
		case e := <-sink.done:
			ctrl.Exit()
			if a, ok := e.(lifecycle.Aborted); ok {
				return errors.New(a.Reason)
			}
			return nil
		case <-sigs:
			if ctrl.ConfirmExit() {
				ctrl.Exit()
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := sessionCommand(ctrl, con, line); err != nil {
				fmt.Fprintln(con.out, err)
			}
		}
	}
}

func sessionCommand(ctrl *lifecycle.Controller, con *console, line string) error {
	switch strings.ToLower(line) {
	case "":
		return nil
	case "pause":
		if err := ctrl.Pause(); err != nil {
			return err
		}
		fmt.Fprintln(con.out, "Paused.")
	case "resume", "unpause":
		if err := ctrl.Unpause(); err != nil {
			return err
		}
		fmt.Fprintln(con.out, "Resumed.")
	case "stop":
		err := ctrl.Stop(con)
		if errors.Is(err, lifecycle.ErrCanceled) {
			fmt.Fprintln(con.out, "Still sending.")
			return nil
		}
		return err
	case "status":
		st := ctrl.Status()
		fmt.Fprintf(con.out, "%s: %d/%d\n", st.State, st.Done, st.Total)
	default:
		return newUserError("Unknown command %q. %s", line, sendCommands)
	}
	return nil
}
