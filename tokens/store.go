package tokens

import (
	"context"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/rs/zerolog/log"
)

// Storage keys
const (
	KeyAccessToken = "4ai_access_token"
	KeyIDToken     = "4ai_id_token"
	KeyExpiresAt   = "4ai_expires_at"
)

// Keys returns the storage keys of a token record.
func Keys() []string {
	return []string{KeyAccessToken, KeyIDToken, KeyExpiresAt}
}

// IsTokenKey reports whether key belongs to the token record.
func IsTokenKey(key string) bool {
	return key == KeyAccessToken || key == KeyIDToken || key == KeyExpiresAt
}

// Tokens is the payload returned by a handoff exchange.
type Tokens struct {
	AccessToken string
	IDToken     string
	ExpiresIn   int // seconds
}

// Record is an immutable snapshot of the stored credentials.
type Record struct {
	AccessToken string
	IDToken     string
	ExpiresAt   time.Time
}

// Expired reports whether the record is no longer usable at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists the token record of one tab. All three fields are written
// and removed together; expiry is enforced lazily on read.
type Store struct {
	area    storage.Area
	mu      sync.Mutex
	nowTime func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// NewStore creates a token store on top of area.
func NewStore(area storage.Area, options ...StoreOption) *Store {
	s := &Store{
		area:    area,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Area returns the storage area backing the store.
func (s *Store) Area() storage.Area {
	return s.area
}

// Save stores t with an absolute expiry of now + ExpiresIn seconds.
func (s *Store) Save(ctx context.Context, t Tokens) error {
	if t.AccessToken == "" || t.IDToken == "" {
		return apperrors.Wrapf(apperrors.ErrPartialRecord, "[Store.Save]")
	}
	expiresAt := s.nowTime().Add(time.Duration(t.ExpiresIn) * time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.area.SetItems(ctx, map[string]string{
		KeyAccessToken: t.AccessToken,
		KeyIDToken:     t.IDToken,
		KeyExpiresAt:   strconv.FormatInt(expiresAt.UnixMilli(), 10),
	})
	return apperrors.Wrapf(err, "[Store.Save]")
}

// Clear removes the record. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return apperrors.Wrapf(s.area.RemoveItems(ctx, Keys()...), "[Store.Clear]")
}

// AccessToken returns the access token while it is unexpired. An expired or
// damaged record is cleared as a side effect.
func (s *Store) AccessToken(ctx context.Context) (string, bool) {
	r, ok := s.Snapshot(ctx)
	if !ok {
		return "", false
	}
	return r.AccessToken, true
}

// IDToken returns the stored identity token without checking expiry; it is
// always written and cleared together with the access token.
func (s *Store) IDToken(ctx context.Context) (string, bool) {
	v, ok, err := s.area.Get(ctx, KeyIDToken)
	if err != nil {
		log.Err(err).Msg("Failed to read id token")
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// IsLoggedIn reports whether an unexpired access token is stored.
func (s *Store) IsLoggedIn(ctx context.Context) bool {
	_, ok := s.AccessToken(ctx)
	return ok
}

// Snapshot returns a copy of the unexpired record. The three keys are read
// in one step, so the record never mixes two saves. A partial, unreadable or
// expired record is cleared as a side effect.
func (s *Store) Snapshot(ctx context.Context) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.area.GetItems(ctx, Keys()...)
	if err != nil {
		log.Err(err).Msg("Failed to read token record")
		return Record{}, false
	}
	if len(items) == 0 {
		return Record{}, false
	}

	accessToken, idToken, expiresAtRaw := items[KeyAccessToken], items[KeyIDToken], items[KeyExpiresAt]
	if accessToken == "" || idToken == "" || expiresAtRaw == "" {
		log.Warn().Int("keys", len(items)).Msg("Clearing partial token record")
		s.clearLocked(ctx)
		return Record{}, false
	}

	millis, err := strconv.ParseInt(expiresAtRaw, 10, 64)
	if err != nil {
		log.Warn().Str("expires_at", expiresAtRaw).Msg("Clearing token record with unreadable expiry")
		s.clearLocked(ctx)
		return Record{}, false
	}

	r := Record{AccessToken: accessToken, IDToken: idToken, ExpiresAt: time.UnixMilli(millis)}
	if r.Expired(s.nowTime()) {
		log.Debug().Time("expires_at", r.ExpiresAt).Msg("Token expired, clearing record")
		s.clearLocked(ctx)
		return Record{}, false
	}
	return r, true
}

// clearLocked must be called with s.mu held.
func (s *Store) clearLocked(ctx context.Context) {
	if err := s.area.RemoveItems(ctx, Keys()...); err != nil {
		log.Err(err).Msg("Failed to clear token record")
	}
}
