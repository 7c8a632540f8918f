package cmd

import (
	"github.com/rykov/lure/lifecycle"
	"golang.org/x/term"

	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// console is the terminal front end: it answers yes/no questions and
// credential prompts from stdin. Lines are read synchronously until
// listen hands them to the command loop.
type console struct {
	in  *bufio.Reader
	out io.Writer

	// Terminal for password input, or -1
	fd int

	mu    sync.Mutex
	lines chan string
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd = int(f.Fd())
	}
	return c
}

// listen reads the remaining lines on a goroutine; the channel
// is closed at the end of input
func (c *console) listen() <-chan string {
	ch := make(chan string)
	c.mu.Lock()
	c.lines = ch
	c.mu.Unlock()

	go func() {
		defer close(ch)
		for {
			s, err := c.in.ReadString('\n')
			if s != "" {
				ch <- strings.TrimSpace(s)
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

func (c *console) readLine() (string, bool) {
	c.mu.Lock()
	ch := c.lines
	c.mu.Unlock()

	if ch != nil {
		s, ok := <-ch
		return s, ok
	}
	s, err := c.in.ReadString('\n')
	if err != nil && s == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func (c *console) readPassword() (string, bool) {
	if c.fd < 0 {
		return c.readLine()
	}
	raw, err := term.ReadPassword(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (c *console) AskYesNo(title, message string) bool {
	fmt.Fprintf(c.out, "\n%s\n%s [y/N] ", title, message)
	s, ok := c.readLine()
	if !ok {
		fmt.Fprintln(c.out)
		return false
	}
	switch strings.ToLower(s) {
	case "y", "yes":
		return true
	}
	return false
}

// Credentials asks for a username and password. An empty
// username or the end of input cancels.
func (c *console) Credentials(ctx context.Context, target lifecycle.Target) (lifecycle.Credentials, bool) {
	if ctx.Err() != nil {
		return lifecycle.Credentials{}, false
	}

	fmt.Fprintf(c.out, "\n%s username (empty to cancel): ", target)
	user, ok := c.readLine()
	if !ok || user == "" {
		return lifecycle.Credentials{}, false
	}

	fmt.Fprintf(c.out, "%s password: ", target)
	pass, ok := c.readPassword()
	if !ok {
		return lifecycle.Credentials{}, false
	}
	return lifecycle.Credentials{Username: user, Password: pass}, true
}

// consoleSink prints progress and hands over the terminal event
type consoleSink struct {
	out  io.Writer
	mu   sync.Mutex
	done chan lifecycle.Event
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out, done: make(chan lifecycle.Event, 1)}
}

func (s *consoleSink) Notify(e lifecycle.Event) {
	s.mu.Lock()
	switch ev := e.(type) {
	case lifecycle.StatusText:
		fmt.Fprint(s.out, ev.Text)
	case lifecycle.SentCount:
		fmt.Fprintf(s.out, "Sent %s messages (%.0f%%)\n", ev, ev.Fraction()*100)
	case lifecycle.Finished:
		fmt.Fprintln(s.out, "Finished sending.")
	case lifecycle.Stopped:
		fmt.Fprintln(s.out, "Sending stopped.")
	case lifecycle.Aborted:
		fmt.Fprintf(s.out, "Sending aborted: %s\n", ev.Reason)
	}
	s.mu.Unlock()

	if e.Terminal() {
		select {
		case s.done <- e:
		default:
		}
	}
}
