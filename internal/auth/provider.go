// internal/auth/provider.go
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"esplit/internal/logger"
	"esplit/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// ErrAuthFailed is the only error callers see for a rejected sign-in or
// sign-up; the underlying cause is logged, never returned.
var ErrAuthFailed = errors.New("invalid credentials")

const minPasswordLength = 6

// stateRetryInterval spaces session store lookups while the first
// determination for a subscriber keeps failing.
var stateRetryInterval = time.Second

type Identity struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
}

type Session struct {
	ID        string       `json:"-"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Identity  Identity     `json:"identity"`
	User      *models.User `json:"-"`
}

type listener struct {
	mu        sync.Mutex
	fn        func(*Identity)
	delivered bool
	closed    bool
}

// deliver runs fn unless the listener is gone. The initial determination is
// dropped once any pushed event has reached the listener.
func (l *listener) deliver(id *Identity, initial bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || (initial && l.delivered) {
		return
	}
	l.delivered = true
	l.fn(id)
}

func (l *listener) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type Provider struct {
	users    UserStore
	sessions SessionStore
	secret   []byte
	ttl      time.Duration

	mu        sync.Mutex
	listeners map[uint]map[uint64]*listener
	nextID    uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProvider(users UserStore, sessions SessionStore, secret []byte, ttl time.Duration) *Provider {
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		users:     users,
		sessions:  sessions,
		secret:    secret,
		ttl:       ttl,
		listeners: make(map[uint]map[uint64]*listener),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (p *Provider) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || len(password) < minPasswordLength {
		return nil, ErrAuthFailed
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error().Err(err).Msg("failed to hash password")
		return nil, ErrAuthFailed
	}

	user := &models.User{
		Email:    email,
		Password: string(hashed),
		Name:     name,
	}
	if err := p.users.Create(ctx, user); err != nil {
		logger.Warn().Err(err).Str("email", email).Msg("sign-up rejected")
		return nil, ErrAuthFailed
	}

	return p.issue(ctx, user)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := p.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			logger.Error().Err(err).Msg("sign-in lookup failed")
		}
		return nil, ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrAuthFailed
	}

	return p.issue(ctx, user)
}

func (p *Provider) issue(ctx context.Context, user *models.User) (*Session, error) {
	id := Identity{UserID: user.ID, Email: user.Email}

	token, claims, err := GenerateToken(id, p.secret, p.ttl)
	if err != nil {
		logger.Error().Err(err).Uint("user_id", user.ID).Msg("failed to generate token")
		return nil, ErrAuthFailed
	}

	if err := p.sessions.Create(ctx, claims.ID, user.ID, claims.ExpiresAt.Time); err != nil {
		logger.Error().Err(err).Uint("user_id", user.ID).Msg("failed to create session")
		return nil, ErrAuthFailed
	}

	p.notify(user.ID, &id)

	return &Session{
		ID:        claims.ID,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Identity:  id,
		User:      user,
	}, nil
}

// SignOut revokes the session behind token. Signing out without a session,
// or with an expired or unknown token, succeeds and changes nothing.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := ParseToken(token, p.secret)
	if err != nil {
		return nil
	}

	if err := p.sessions.Revoke(ctx, claims.ID); err != nil {
		return err
	}

	active, err := p.sessions.Active(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if active == 0 {
		p.notify(claims.UserID, nil)
	}
	return nil
}

// Verify checks the token signature and expiry and that its session has not
// been revoked.
func (p *Provider) Verify(ctx context.Context, token string) (*Identity, error) {
	s, err := p.Resume(ctx, token)
	if err != nil {
		return nil, err
	}
	return &s.Identity, nil
}

// Resume returns the live session behind token.
func (p *Provider) Resume(ctx context.Context, token string) (*Session, error) {
	claims, err := ParseToken(token, p.secret)
	if err != nil {
		return nil, err
	}

	ok, err := p.sessions.Exists(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidToken
	}

	return &Session{
		ID:        claims.ID,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Identity:  Identity{UserID: claims.UserID, Email: claims.Email},
	}, nil
}

// Current reports the signed-in identity for userID, or nil when the user
// holds no live session.
func (p *Provider) Current(ctx context.Context, userID uint) (*Identity, error) {
	active, err := p.sessions.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active == 0 {
		return nil, nil
	}

	user, err := p.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Identity{UserID: user.ID, Email: user.Email}, nil
}

func (p *Provider) Profile(ctx context.Context, userID uint) (*models.User, error) {
	return p.users.FindByID(ctx, userID)
}

// OnAuthStateChange registers fn for state changes of userID. The current
// state is delivered asynchronously once the session store answers; lookup
// errors are retried, not reported. The returned function unsubscribes and
// guarantees fn is not running and will not run again.
func (p *Provider) OnAuthStateChange(userID uint, fn func(*Identity)) (unsubscribe func()) {
	l := &listener{fn: fn}

	p.mu.Lock()
	p.nextID++
	key := p.nextID
	if p.listeners[userID] == nil {
		p.listeners[userID] = make(map[uint64]*listener)
	}
	p.listeners[userID][key] = l
	p.mu.Unlock()

	p.wg.Add(1)
	go p.determine(userID, l)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners[userID], key)
			if len(p.listeners[userID]) == 0 {
				delete(p.listeners, userID)
			}
			p.mu.Unlock()
			l.close()
		})
	}
}

func (p *Provider) determine(userID uint, l *listener) {
	defer p.wg.Done()

	for {
		ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
		id, err := p.Current(ctx, userID)
		cancel()
		if err == nil {
			l.deliver(id, true)
			return
		}

		logger.Debug().Err(err).Uint("user_id", userID).Msg("auth state lookup failed, retrying")
		select {
		case <-p.ctx.Done():
			return
		case <-time.After(stateRetryInterval):
		}
		if l.isClosed() {
			return
		}
	}
}

func (p *Provider) notify(userID uint, id *Identity) {
	p.mu.Lock()
	targets := make([]*listener, 0, len(p.listeners[userID]))
	for _, l := range p.listeners[userID] {
		targets = append(targets, l)
	}
	p.mu.Unlock()

	for _, l := range targets {
		l.deliver(id, false)
	}
}

// Close stops pending state lookups.
func (p *Provider) Close() {
	p.cancel()
	p.wg.Wait()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
