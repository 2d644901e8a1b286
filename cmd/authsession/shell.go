package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/redirect"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/tab"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const usage = `commands:
  login [return-url]      open the identity login page
  logout                  end the session
  complete <url>          finish a login from the URL the identity page returned to
  status                  show the session
  get <service> <path>    call a product API with the session
  get <url>               call any URL with the session
  quit`

type shell struct {
	cfg      config.Config
	tab      *tab.Tab
	location *redirect.MemoryLocation
	out      io.Writer
	manager  *session.Manager
}

func newShell(cfg config.Config, t *tab.Tab, location *redirect.MemoryLocation, out io.Writer) *shell {
	return &shell{cfg: cfg, tab: t, location: location, out: out}
}

func (s *shell) mount(ctx context.Context) error {
	manager, err := s.tab.Session(ctx)
	if err != nil {
		return err
	}
	s.manager = manager
	manager.Subscribe(func(st session.State) {
		if !st.Loading {
			log.Debug().Bool("logged_in", st.IsLoggedIn).Str("name", st.DisplayName).Msg("Session changed")
		}
	})

	st, err := s.tab.Mount(ctx)
	if err != nil {
		return err
	}
	s.printState(st)
	return nil
}

// serve reads commands until quit, EOF or ctx ends.
func (s *shell) serve(ctx context.Context, in *bufio.Scanner) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

	fmt.Fprintln(s.out, usage)
	for {
		fmt.Fprint(s.out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return in.Err()
			}
			quit, err := s.exec(ctx, line)
			if err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "login":
		returnURL := ""
		if len(args) > 0 {
			returnURL = args[0]
		}
		s.manager.Login(returnURL)
	case "logout":
		s.manager.Logout(ctx)
		s.printState(s.manager.Snapshot())
	case "complete":
		if len(args) != 1 {
			return false, errors.New("usage: complete <url>")
		}
		return false, s.complete(ctx, args[0])
	case "status":
		s.printState(s.manager.Snapshot())
	case "get":
		switch len(args) {
		case 1:
			return false, s.get(ctx, args[0])
		case 2:
			base, ok := s.cfg.GetServiceAPIURL(config.Service(args[0]))
			if !ok {
				return false, errors.Errorf("no API URL for service %q", args[0])
			}
			return false, s.get(ctx, base+"/"+strings.TrimLeft(args[1], "/"))
		default:
			return false, errors.New("usage: get <service> <path> | get <url>")
		}
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(s.out, usage)
	default:
		return false, errors.Errorf("unknown command %q", cmd)
	}
	return false, nil
}

// complete lands the tab on the URL the identity SPA redirected to and runs
// the handoff sequence on it.
func (s *shell) complete(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "parse url")
	}
	s.location.ReplaceState(u)
	if _, ok := s.tab.Flow().PendingHandoff(); !ok {
		return errors.Errorf("no %s parameter in %s", redirect.HandoffParam, rawURL)
	}

	st := s.manager.Init(ctx)
	fmt.Fprintf(s.out, "now at %s\n", s.location.Href())
	s.printState(st)
	return nil
}

func (s *shell) get(ctx context.Context, target string) error {
	var body any
	if err := s.tab.HTTPClient().Get(ctx, target, &body); err != nil {
		return err
	}
	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return errors.Wrap(err, "format response")
	}
	fmt.Fprintln(s.out, string(out))
	return nil
}

func (s *shell) printState(st session.State) {
	if !st.IsLoggedIn {
		fmt.Fprintln(s.out, "logged out")
		return
	}
	fmt.Fprintf(s.out, "logged in as %s (sub %s)\n", st.DisplayName, st.User.Sub)
}
