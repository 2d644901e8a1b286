// Package authfake is an in-process stand-in for the auth API, used by tests
// across the module.
package authfake

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/authclient"
)

// ProtectedPath is served by the fake and requires a known bearer token.
const ProtectedPath = "/api/profile"

var _ http.Handler = (*Server)(nil)

// Server implements the exchange and verify contract over httptest.
type Server struct {
	*httptest.Server

	lock            sync.Mutex
	handoffs        map[string]authclient.TokenResponse
	users           map[string]authclient.UserInfo // id token -> user
	exchangeStatus  int
	verifyStatus    int
	protectedStatus int
	exchangeCalls   int
	verifyCalls     int
	protectedCalls  int
	lastAuth        string
	lastHeaders     http.Header
}

// NewServer starts a fake auth API. Call Close when done.
func NewServer() *Server {
	s := &Server{
		handoffs: make(map[string]authclient.TokenResponse),
		users:    make(map[string]authclient.UserInfo),
	}
	s.Server = httptest.NewServer(s)
	return s
}

// AddHandoff registers a one-time code that exchanges for tr.
func (s *Server) AddHandoff(code string, tr authclient.TokenResponse) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.handoffs[code] = tr
}

// AddUser makes idToken verify as user.
func (s *Server) AddUser(idToken string, user authclient.UserInfo) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.users[idToken] = user
}

// RemoveUser makes idToken fail verification from now on.
func (s *Server) RemoveUser(idToken string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.users, idToken)
}

// SetExchangeStatus forces the exchange endpoint to answer with status.
// Zero restores normal behaviour.
func (s *Server) SetExchangeStatus(status int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.exchangeStatus = status
}

func (s *Server) SetVerifyStatus(status int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.verifyStatus = status
}

func (s *Server) SetProtectedStatus(status int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.protectedStatus = status
}

func (s *Server) ExchangeCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.exchangeCalls
}

func (s *Server) VerifyCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.verifyCalls
}

func (s *Server) ProtectedCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.protectedCalls
}

// LastAuthorization is the Authorization header of the latest request.
func (s *Server) LastAuthorization() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastAuth
}

// LastHeaders is a copy of the headers of the latest request.
func (s *Server) LastHeaders() http.Header {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastHeaders.Clone()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.lastAuth = r.Header.Get("Authorization")
	s.lastHeaders = r.Header.Clone()
	s.lock.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == authclient.ExchangeHandoffPath:
		s.exchange(w, r)
	case r.Method == http.MethodGet && r.URL.Path == authclient.VerifyPath:
		s.verify(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/"):
		s.protected(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) exchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handoff string `json:"handoff"`
	}
	err := json.NewDecoder(r.Body).Decode(&req)

	s.lock.Lock()
	s.exchangeCalls++
	status := s.exchangeStatus
	tr, ok := s.handoffs[req.Handoff]
	if ok {
		delete(s.handoffs, req.Handoff)
	}
	s.lock.Unlock()

	switch {
	case status != 0:
		http.Error(w, http.StatusText(status), status)
	case err != nil:
		http.Error(w, "invalid body", http.StatusBadRequest)
	case !ok:
		http.Error(w, "invalid or expired handoff", http.StatusUnauthorized)
	default:
		writeJSON(w, http.StatusOK, tr)
	}
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	user, known := s.lookup(r)

	s.lock.Lock()
	s.verifyCalls++
	status := s.verifyStatus
	s.lock.Unlock()

	switch {
	case status != 0:
		http.Error(w, http.StatusText(status), status)
	case !known:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": user})
	}
}

func (s *Server) protected(w http.ResponseWriter, r *http.Request) {
	user, known := s.lookup(r)

	s.lock.Lock()
	s.protectedCalls++
	status := s.protectedStatus
	s.lock.Unlock()

	switch {
	case status != 0:
		http.Error(w, http.StatusText(status), status)
	case !known:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"sub": user.Sub, "path": r.URL.Path})
	}
}

func (s *Server) lookup(r *http.Request) (authclient.UserInfo, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return authclient.UserInfo{}, false
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	user, ok := s.users[token]
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrNetworkDown is returned by NetworkDown.
var ErrNetworkDown = errors.New("network down")

// NetworkDown is a RoundTripper that fails every request before it is sent.
type NetworkDown struct{}

func (NetworkDown) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, ErrNetworkDown
}

// MintIDToken signs an identity token for tests. The client never checks the
// signature, so the key is irrelevant.
func MintIDToken(sub, email string, expiresAt time.Time) string {
	claims := jwtlib.MapClaims{
		"sub":   sub,
		"email": email,
		"iat":   expiresAt.Add(-time.Hour).Unix(),
	}
	if !expiresAt.IsZero() {
		claims["exp"] = expiresAt.Unix()
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("authfake"))
	if err != nil {
		panic(err)
	}
	return signed
}
