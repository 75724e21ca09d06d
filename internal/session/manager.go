package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

const (
	DefaultCookieName = "expense_tracker_sid"
	DefaultMaxAge     = 7 * 24 * time.Hour
)

// Options configures a Manager.
type Options struct {
	Secret     string
	MaxAge     time.Duration
	Secure     bool
	CookieName string
}

// Manager resolves the session cookie of each request and issues or revokes
// sessions on login and logout.
type Manager struct {
	store      Store
	signer     signer
	maxAge     time.Duration
	secure     bool
	cookieName string
	now        func() time.Time
}

func NewManager(store Store, opts Options) *Manager {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return &Manager{
		store:      store,
		signer:     signer{key: []byte(opts.Secret)},
		maxAge:     opts.MaxAge,
		secure:     opts.Secure,
		cookieName: opts.CookieName,
		now:        time.Now,
	}
}

// requestState is the per-request session slot handed to resolvers through
// the context.
type requestState struct {
	w http.ResponseWriter

	mu        sync.Mutex
	sessionID string
	userID    string
}

type contextKey struct{}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(contextKey{}).(*requestState)
	return st
}

// Middleware attaches the caller's session, if any, to the request context.
// Invalid or expired cookies are cleared.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &requestState{w: w}
		if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
			m.resolve(r.Context(), st, c.Value)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, st)))
	})
}

func (m *Manager) resolve(ctx context.Context, st *requestState, cookie string) {
	sid, err := m.signer.parse(cookie, m.now())
	if err != nil {
		slog.DebugContext(ctx, "Rejected session cookie", applog.FieldError, err)
		m.clearCookie(st.w)
		return
	}
	sess, err := m.store.Get(ctx, sid)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			slog.ErrorContext(ctx, "Failed to load session", applog.FieldError, err)
			return
		}
		m.clearCookie(st.w)
		return
	}
	st.sessionID = sess.ID
	st.userID = sess.UserID
}

// Login starts a new session for userID and sets the session cookie. Any
// session already attached to the request is revoked first.
func (m *Manager) Login(ctx context.Context, userID string) error {
	st := stateFrom(ctx)
	if st == nil {
		return errors.New("login: no session middleware in request chain")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sessionID != "" {
		if err := m.store.Delete(ctx, st.sessionID); err != nil {
			slog.WarnContext(ctx, "Failed to revoke previous session", applog.FieldError, err)
		}
	}

	now := m.now()
	sess := core.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(m.maxAge),
		CreatedAt: now,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	value, err := m.signer.sign(sess.ID, sess.ExpiresAt, now)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	http.SetCookie(st.w, &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.maxAge / time.Second),
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite(),
	})
	st.sessionID = sess.ID
	st.userID = userID
	slog.InfoContext(ctx, "Session started", applog.FieldUserID, userID)
	return nil
}

// Logout destroys the current session and clears the cookie. Logging out
// without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	st := stateFrom(ctx)
	if st == nil {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sessionID != "" {
		if err := m.store.Delete(ctx, st.sessionID); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		slog.InfoContext(ctx, "Session ended", applog.FieldUserID, st.userID)
	}
	m.clearCookie(st.w)
	st.sessionID = ""
	st.userID = ""
	return nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite(),
	})
}

// sameSite allows the cookie on cross-site requests from the hosted frontend
// when it is HTTPS-only; browsers reject SameSite=None without Secure.
func (m *Manager) sameSite() http.SameSite {
	if m.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// PruneExpired removes expired sessions from stores that do not expire them
// on their own.
func (m *Manager) PruneExpired(ctx context.Context) (int64, error) {
	p, ok := m.store.(ExpiredPruner)
	if !ok {
		return 0, nil
	}
	n, err := p.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.InfoContext(ctx, "Pruned expired sessions", "count", n)
	}
	return n, nil
}

// UserID returns the authenticated user of the request, or "".
func UserID(ctx context.Context) string {
	st := stateFrom(ctx)
	if st == nil {
		return ""
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.userID
}

// RequireUser returns the authenticated user or core.ErrUnauthenticated.
func RequireUser(ctx context.Context) (string, error) {
	if id := UserID(ctx); id != "" {
		return id, nil
	}
	return "", core.ErrUnauthenticated
}
