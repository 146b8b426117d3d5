package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestAuthority(t *testing.T, opts ...AuthorityOption) (*Authority, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	a, err := NewAuthority(store, "test-secret", opts...)
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	return a, store
}

func signUpParams() SignUpParams {
	return SignUpParams{
		FullName:          "Ada Lovelace",
		Email:             "ada@example.edu",
		UniversityID:      "UNI-001",
		UniversityCardURL: "https://cards.example.edu/ada.png",
		Password:          "correct horse",
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	a, _ := newTestAuthority(t)
	ctx := context.Background()

	created, err := a.SignUp(ctx, signUpParams())
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if created.Token == "" || created.Identity.Role != RoleMember {
		t.Fatalf("unexpected session: %+v", created)
	}

	sess, err := a.SignIn(ctx, "ADA@example.edu", "correct horse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if sess.Identity.ID != created.Identity.ID {
		t.Fatalf("identity mismatch: %s != %s", sess.Identity.ID, created.Identity.ID)
	}
	if !sess.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", sess.ExpiresAt)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	a, _ := newTestAuthority(t)
	ctx := context.Background()

	if _, err := a.SignUp(ctx, signUpParams()); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SignUp(ctx, signUpParams()); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	a, _ := newTestAuthority(t)
	ctx := context.Background()

	cases := map[string]func(*SignUpParams){
		"empty name":     func(p *SignUpParams) { p.FullName = "" },
		"bad email":      func(p *SignUpParams) { p.Email = "not-an-email" },
		"no uni id":      func(p *SignUpParams) { p.UniversityID = "" },
		"short password": func(p *SignUpParams) { p.Password = "short" },
	}
	for name, mutate := range cases {
		params := signUpParams()
		mutate(&params)
		if _, err := a.SignUp(ctx, params); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestSignInDoesNotRevealAccounts(t *testing.T) {
	a, _ := newTestAuthority(t)
	ctx := context.Background()
	if _, err := a.SignUp(ctx, signUpParams()); err != nil {
		t.Fatal(err)
	}

	_, errUnknown := a.SignIn(ctx, "nobody@example.edu", "whatever")
	_, errWrongPw := a.SignIn(ctx, "ada@example.edu", "wrong password")

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatalf("errors differ: %q vs %q", errUnknown, errWrongPw)
	}
}

type failingUserStore struct {
	UserStore
	err error
}

func (s failingUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return nil, s.err
}

func TestSignInSurfacesStorageFailure(t *testing.T) {
	storeErr := errors.New("pq: connection refused")
	a, err := NewAuthority(failingUserStore{err: storeErr}, "test-secret")
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}

	_, err = a.SignIn(context.Background(), "ada@example.edu", "correct horse")
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("storage failure must not look like bad credentials: %v", err)
	}
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestResolveAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _ := newTestAuthority(t,
		WithSessionTTL(15*time.Minute),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	sess, err := a.SignUp(ctx, signUpParams())
	if err != nil {
		t.Fatal(err)
	}

	id, err := a.Resolve(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.ID != sess.Identity.ID || id.DisplayName != "Ada Lovelace" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// One second past expiry the same token is dead.
	now = sess.ExpiresAt.Add(time.Second)
	if _, err := a.Resolve(ctx, sess.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestResolveRejectsTamperedToken(t *testing.T) {
	a, _ := newTestAuthority(t)
	other, _ := NewAuthority(NewMemoryStore(), "different-secret")
	ctx := context.Background()

	sess, err := other.SignUp(ctx, signUpParams())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Resolve(ctx, sess.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for foreign signature, got %v", err)
	}
	if _, err := a.Resolve(ctx, "not.a.token"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for garbage, got %v", err)
	}
}

func TestResolveTouchesDailyActivity(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a, store := newTestAuthority(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	sess, err := a.SignUp(ctx, signUpParams())
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(24 * time.Hour)
	if _, err := a.Resolve(ctx, sess.Token); err != nil {
		t.Fatal(err)
	}

	u, err := store.Find(ctx, sess.Identity.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := now.Truncate(24 * time.Hour)
	if !u.LastActivityDate.Equal(want) {
		t.Fatalf("expected activity date %v, got %v", want, u.LastActivityDate)
	}
}

func TestRefreshIssuesNewWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _ := newTestAuthority(t,
		WithSessionTTL(10*time.Minute),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	sess, err := a.SignUp(ctx, signUpParams())
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(5 * time.Minute)
	refreshed, err := a.Refresh(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !refreshed.ExpiresAt.After(sess.ExpiresAt) {
		t.Fatalf("expected extended expiry: %v <= %v", refreshed.ExpiresAt, sess.ExpiresAt)
	}
	if refreshed.Identity != sess.Identity {
		t.Fatalf("identity changed on refresh: %+v", refreshed.Identity)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := IdentityFromContext(ctx); ok {
		t.Fatal("empty context must not carry an identity")
	}
	ctx = ContextWithIdentity(ctx, Identity{ID: "u1", DisplayName: "Ada", Role: RoleAdmin})
	id, ok := IdentityFromContext(ctx)
	if !ok || id.ID != "u1" {
		t.Fatalf("unexpected identity: %+v ok=%v", id, ok)
	}
	if !IsAdmin(ctx) {
		t.Fatal("expected admin")
	}
}
