// Package crosstab keeps a tab's session state in line with token changes
// made elsewhere: by other tabs through storage events, and by the tab itself
// through a Broadcaster.
package crosstab

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Reconciler re-derives the session from the token store.
type Reconciler interface {
	Reconcile(ctx context.Context) session.State
}

// Sync turns token-key storage events and same-tab notifications into
// reconciliations. Signals arriving while one is running collapse into a
// single follow-up run.
type Sync struct {
	reconciler Reconciler
	kick       chan struct{}
	cancel     context.CancelFunc
	stopWatch  func()
	unlisten   func()
	done       chan struct{}
	stopOnce   sync.Once
}

// Start watches area and broadcaster until Stop is called or ctx ends.
func Start(ctx context.Context, area storage.Area, broadcaster *Broadcaster, reconciler Reconciler) (*Sync, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Sync{
		reconciler: reconciler,
		kick:       make(chan struct{}, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	stopWatch, err := area.Watch(ctx, s.onStorageEvent)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "watching token storage")
	}
	s.stopWatch = stopWatch
	s.unlisten = broadcaster.Listen(s.trigger)

	go s.run(ctx)
	return s, nil
}

func (s *Sync) onStorageEvent(e storage.Event) {
	if !tokens.IsTokenKey(e.Key) {
		return
	}
	log.Debug().Str("key", e.Key).Str("origin", e.Origin).Bool("removed", e.Removed).Msg("Token change from another tab")
	s.trigger()
}

func (s *Sync) trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Sync) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
			st := s.reconciler.Reconcile(ctx)
			log.Debug().Bool("logged_in", st.IsLoggedIn).Msg("Session reconciled")
		}
	}
}

// Stop detaches from both signal sources and waits for an in-flight
// reconciliation to finish.
func (s *Sync) Stop() {
	s.stopOnce.Do(func() {
		s.unlisten()
		s.stopWatch()
		s.cancel()
		<-s.done
	})
}
