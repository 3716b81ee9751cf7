package auth

import (
	"sync"
)

// Change is emitted to subscribers whenever the login state flips.
type Change struct {
	LoggedIn bool
	UserID   string
}

// Session tracks the current login state for the app process. Token refresh
// and credential validation happen elsewhere; consumers only ever ask
// "is someone logged in, and what bearer token do I send".
type Session struct {
	mu       sync.RWMutex
	loggedIn bool
	userID   string
	token    string
	subs     []chan Change
}

func NewSession() *Session {
	return &Session{}
}

// Login records an authenticated session and notifies subscribers.
func (s *Session) Login(userID, token string) {
	s.mu.Lock()
	s.loggedIn = true
	s.userID = userID
	s.token = token
	subs := s.subs
	s.mu.Unlock()

	notify(subs, Change{LoggedIn: true, UserID: userID})
}

// Logout drops the session and notifies subscribers.
func (s *Session) Logout() {
	s.mu.Lock()
	s.loggedIn = false
	s.userID = ""
	s.token = ""
	subs := s.subs
	s.mu.Unlock()

	notify(subs, Change{LoggedIn: false})
}

func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Token implements api.TokenSource. Empty while logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Subscribe returns a channel receiving future login-state changes.
// The channel is buffered; a subscriber that falls behind loses the
// oldest pending change rather than blocking the publisher.
func (s *Session) Subscribe() <-chan Change {
	ch := make(chan Change, 4)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func notify(subs []chan Change, c Change) {
	for _, ch := range subs {
		select {
		case ch <- c:
		default:
			// drop the oldest pending change, then retry once
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}
