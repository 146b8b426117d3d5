package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"libris.org/internal/ids"
	"libris.org/internal/notify"
	"libris.org/internal/obs"
)

const defaultSessionTTL = 30 * time.Minute

// Authority verifies credentials and owns the session token lifecycle.
// Tokens are stateless: no session table exists, a signed claim set is the
// only proof of authentication after signin.
type Authority struct {
	store      UserStore
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
	notifier   notify.Notifier
}

// AuthorityOption configures Authority.
type AuthorityOption func(*Authority)

// WithSessionTTL overrides the session validity window.
func WithSessionTTL(ttl time.Duration) AuthorityOption {
	return func(a *Authority) {
		if ttl > 0 {
			a.sessionTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) AuthorityOption {
	return func(a *Authority) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithNotifier attaches the fire-and-forget notification channel.
func WithNotifier(n notify.Notifier) AuthorityOption {
	return func(a *Authority) {
		if n != nil {
			a.notifier = n
		}
	}
}

// NewAuthority constructs an Authority. The signing secret is mandatory.
func NewAuthority(store UserStore, secret string, opts ...AuthorityOption) (*Authority, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("auth: signing secret is not configured")
	}
	a := &Authority{
		store:      store,
		secret:     []byte(secret),
		sessionTTL: defaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SignUpParams carries validated registration input.
type SignUpParams struct {
	FullName          string
	Email             string
	UniversityID      string
	UniversityCardURL string
	Password          string
}

func (p *SignUpParams) validate() error {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	p.UniversityID = strings.TrimSpace(p.UniversityID)
	if p.FullName == "" || len(p.FullName) > 255 {
		return fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if p.UniversityID == "" || len(p.UniversityID) > 64 {
		return fmt.Errorf("%w: university id is required", ErrInvalidInput)
	}
	if len(p.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	return nil
}

// SignUp registers a member and immediately issues a session.
func (a *Authority) SignUp(ctx context.Context, params SignUpParams) (Session, error) {
	if err := params.validate(); err != nil {
		return Session{}, err
	}
	hash, err := HashPassword(params.Password)
	if err != nil {
		return Session{}, err
	}
	now := a.now().UTC()
	user := &User{
		ID:                ids.New(),
		FullName:          params.FullName,
		Email:             params.Email,
		UniversityID:      params.UniversityID,
		UniversityCardURL: params.UniversityCardURL,
		PasswordHash:      hash,
		Role:              RoleMember,
		Status:            "active",
		LastActivityDate:  now.Truncate(24 * time.Hour),
		CreatedAt:         now,
	}
	if err := a.store.Create(ctx, user); err != nil {
		return Session{}, err
	}

	if a.notifier != nil {
		a.notifier.Notify(notify.Message{
			Email:   user.Email,
			Subject: "Welcome to the library",
			Body:    "Hi " + user.FullName + ", your account is ready.",
		})
	}

	return a.mint(user)
}

// SignIn verifies credentials and issues a session. Unknown email and wrong
// password both come back as ErrInvalidCredentials.
func (a *Authority) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := a.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		// Storage failure, not a bad credential. Surface it so the caller
		// reports an internal error instead of a misleading 401.
		return Session{}, fmt.Errorf("auth: lookup user: %w", err)
	}
	if user.Status != "active" {
		return Session{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return a.mint(user)
}

// Resolve verifies a session token by signature and expiry only. On success
// it touches the user's daily activity stamp; that write is best effort and
// its failure never fails the resolve.
func (a *Authority) Resolve(ctx context.Context, token string) (Identity, error) {
	claims, err := parseToken(a.secret, token, a.now().UTC())
	if err != nil {
		return Identity{}, err
	}
	id := Identity{
		ID:          claims.Subject,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
		Role:        claims.Role,
	}

	if a.store != nil {
		day := a.now().UTC().Truncate(24 * time.Hour)
		if err := a.store.TouchActivity(ctx, id.ID, day); err != nil {
			obs.LogRequest(map[string]any{
				"level":   "warn",
				"msg":     "activity touch failed",
				"user_id": id.ID,
				"error":   err.Error(),
			})
		}
	}
	return id, nil
}

// Refresh re-derives the claims from a still-valid token and issues a fresh
// session with a full validity window.
func (a *Authority) Refresh(ctx context.Context, token string) (Session, error) {
	id, err := a.Resolve(ctx, token)
	if err != nil {
		return Session{}, err
	}
	return a.mintIdentity(id)
}

func (a *Authority) mint(user *User) (Session, error) {
	return a.mintIdentity(Identity{
		ID:          user.ID,
		DisplayName: user.FullName,
		Email:       user.Email,
		Role:        user.Role,
	})
}

func (a *Authority) mintIdentity(id Identity) (Session, error) {
	token, expiresAt, err := signToken(a.secret, id, a.now().UTC(), a.sessionTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, Identity: id}, nil
}
