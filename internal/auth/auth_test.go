package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/log"
	"fintrack/internal/store/memory"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *captureMailer) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+"|"+body)
	return nil
}

// lastToken extracts the token from the most recent link.
func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	last := m.sent[len(m.sent)-1]
	i := strings.Index(last, "token=")
	require.GreaterOrEqual(t, i, 0)
	return last[i+len("token="):]
}

func newTestService(t *testing.T) (*Service, *captureMailer) {
	t.Helper()
	mailer := &captureMailer{}
	svc := NewService(memory.New(), NewMemoryRevocations(), mailer, Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		BaseURL:    "http://localhost:8081",
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, log.Discard())
	return svc, mailer
}

func registerVerified(t *testing.T, svc *Service, mailer *captureMailer, email, pw string) User {
	t.Helper()
	u, err := svc.Register(context.Background(), email, pw, pw)
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(context.Background(), mailer.lastToken(t)))
	return u
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "secret1", "secret1")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = svc.Register(ctx, "a@example.com", "secret1", "secret2")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	_, err = svc.Register(ctx, "a@example.com", "abc", "abc")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.Register(ctx, "a@example.com", "secret1", "secret1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, " A@Example.com ", "secret1", "secret1")
	assert.ErrorIs(t, err, ErrEmailInUse)
}

func TestUnverifiedSignInFailsClosed(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "new@example.com", "secret1", "secret1")
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1, "registration mails a verification link")

	sess, err := svc.SignIn(ctx, "new@example.com", "secret1")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Empty(t, sess.Token, "no session is handed out")
	assert.Equal(t, "Please verify your email before signing in.", Message(err))
}

func TestSignInAndOut(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()
	u := registerVerified(t, svc, mailer, "ana@example.com", "secret1")

	_, err := svc.SignIn(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = svc.SignIn(ctx, "ana@example.com", "wrong!")
	assert.ErrorIs(t, err, ErrWrongPassword)

	sess, err := svc.SignIn(ctx, "ANA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)

	cur, err := svc.CurrentUser(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", cur.Email)

	require.NoError(t, svc.SignOut(ctx, sess.Token))
	_, err = svc.CurrentUser(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.NoError(t, svc.SignOut(ctx, "garbage"))
}

func TestVerificationTokenIsSingleUse(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "b@example.com", "secret1", "secret1")
	require.NoError(t, err)
	tok := mailer.lastToken(t)

	require.NoError(t, svc.VerifyEmail(ctx, tok))
	assert.ErrorIs(t, svc.VerifyEmail(ctx, tok), ErrInvalidToken)
	assert.ErrorIs(t, svc.ResendVerification(ctx, "b@example.com"), ErrAlreadyVerified)
}

func TestPasswordReset(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()
	registerVerified(t, svc, mailer, "c@example.com", "secret1")

	assert.ErrorIs(t, svc.SendPasswordReset(ctx, "missing@example.com"), ErrUserNotFound)
	require.NoError(t, svc.SendPasswordReset(ctx, "c@example.com"))
	tok := mailer.lastToken(t)

	assert.ErrorIs(t, svc.ResetPassword(ctx, tok, "newpass", "other"), ErrPasswordMismatch)
	require.NoError(t, svc.ResetPassword(ctx, tok, "newpass", "newpass"))
	assert.ErrorIs(t, svc.ResetPassword(ctx, tok, "again1", "again1"), ErrInvalidToken)

	_, err := svc.SignIn(ctx, "c@example.com", "secret1")
	assert.ErrorIs(t, err, ErrWrongPassword)
	_, err = svc.SignIn(ctx, "c@example.com", "newpass")
	assert.NoError(t, err)
}

func TestTokenIssuerRejectsTampering(t *testing.T) {
	ti := NewTokenIssuer([]byte("k1"), "fintrack", time.Hour)
	tok, claims, err := ti.Issue("u1", "a@example.com")
	require.NoError(t, err)

	got, err := ti.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, got.ID)
	assert.Equal(t, "u1", got.Subject)

	_, err = NewTokenIssuer([]byte("k2"), "fintrack", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = NewTokenIssuer([]byte("k1"), "other", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, _, err := NewTokenIssuer([]byte("k1"), "fintrack", -time.Minute).Issue("u1", "a@example.com")
	require.NoError(t, err)
	_, err = ti.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRedisRevocations(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rev := NewRedisRevocationsFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer rev.Close()
	ctx := context.Background()

	revoked, err := rev.Revoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, rev.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	revoked, err = rev.Revoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = rev.Revoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "revocations expire with the token")

	require.NoError(t, rev.Revoke(ctx, "jti-2", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists(revokedKeyPrefix+"jti-2"))
}

func TestNewRedisRevocationsFromURL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rev, err := NewRedisRevocations(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer rev.Close()
	assert.NoError(t, rev.Ping(context.Background()))
}

func TestMessage(t *testing.T) {
	cases := map[error]string{
		ErrEmailInUse:         "This email is already registered.",
		ErrInvalidEmail:       "Invalid email address.",
		ErrUserNotFound:       "User not found.",
		ErrWrongPassword:      "Incorrect password.",
		ErrPasswordMismatch:   "Passwords do not match.",
		ErrWeakPassword:       "Password should be at least 6 characters.",
		errors.New("network"): "Something went wrong. Please try again.",
	}
	for err, want := range cases {
		assert.Equal(t, want, Message(err))
	}
	assert.Equal(t, "", Message(nil))
}

func TestPasswordStrength(t *testing.T) {
	assert.Equal(t, Weak, PasswordStrength("abc"))
	assert.Equal(t, Medium, PasswordStrength("abcdef"))
	assert.Equal(t, Medium, PasswordStrength("Abcdef1"))
	assert.Equal(t, Strong, PasswordStrength("Abcdef1!"))
	assert.Equal(t, "Strong", Strong.String())
}
