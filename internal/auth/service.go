// Package auth is the identity boundary: accounts with email and password,
// email verification, password reset and revocable JWT sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/log"
	"fintrack/internal/store"
)

// Token purposes stored with single-use links.
const (
	PurposeVerify = "verify"
	PurposeReset  = "reset"

	minPasswordLen = 6
)

// User is the signed-in account as handlers see it.
type User struct {
	ID       string
	Email    string
	Verified bool
}

// Session is an issued session token.
type Session struct {
	Token     string
	User      User
	ExpiresAt time.Time
}

type Config struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
	BaseURL    string
	VerifyTTL  time.Duration
	ResetTTL   time.Duration
	BcryptCost int
}

type Service struct {
	users   store.UserStore
	issuer  *TokenIssuer
	revoked Revocations
	mailer  Mailer
	cfg     Config
	logger  *log.Logger
	now     func() time.Time
}

func NewService(users store.UserStore, revoked Revocations, mailer Mailer, cfg Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "fintrack"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	return &Service{
		users:   users,
		issuer:  NewTokenIssuer(cfg.Secret, cfg.Issuer, cfg.SessionTTL),
		revoked: revoked,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger.WithComponent(log.ComponentAuth),
		now:     time.Now,
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@")+1:], ".")
}

// Register creates an unverified account and mails a verification link.
func (s *Service) Register(ctx context.Context, email, password, confirm string) (User, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return User{}, ErrInvalidEmail
	}
	if password != confirm {
		return User{}, ErrPasswordMismatch
	}
	if len(password) < minPasswordLen {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	u := store.User{ID: uuid.NewString(), Email: email, PasswordHash: string(hash), CreatedAt: s.now().UTC()}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return User{}, ErrEmailInUse
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "Account registered", log.FieldUserID, u.ID)

	if err := s.SendEmailVerification(ctx, u.ID); err != nil {
		s.logger.WarnContext(ctx, "Verification email not sent", log.FieldUserID, u.ID, log.FieldError, err)
	}
	return toUser(u), nil
}

// SignIn checks credentials and issues a session. An unverified account
// fails closed: the issued session is revoked at once and
// ErrEmailNotVerified is returned.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrUserNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrWrongPassword
	}

	token, claims, err := s.issuer.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	if !u.Verified {
		if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			s.logger.ErrorContext(ctx, "Failed to revoke unverified session", log.FieldUserID, u.ID, log.FieldError, err)
		}
		s.logger.WarnContext(ctx, "Sign-in blocked: email not verified", log.FieldUserID, u.ID)
		return Session{}, ErrEmailNotVerified
	}

	s.logger.InfoContext(ctx, "Signed in", log.FieldUserID, u.ID)
	return Session{Token: token, User: toUser(u), ExpiresAt: claims.ExpiresAt.Time}, nil
}

// SignOut revokes the session. Tokens that no longer parse are already
// unusable, so they are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Signed out", log.FieldUserID, claims.Subject)
	return nil
}

// CurrentUser resolves a session token to its verified account.
func (s *Service) CurrentUser(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidToken
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return User{}, err
	}
	revoked, err := s.revoked.Revoked(ctx, claims.ID)
	if err != nil {
		return User{}, err
	}
	if revoked {
		return User{}, ErrInvalidToken
	}
	u, err := s.users.UserByID(ctx, claims.Subject)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	if !u.Verified {
		return User{}, ErrEmailNotVerified
	}
	return toUser(u), nil
}

// SendEmailVerification mails a single-use verification link.
func (s *Service) SendEmailVerification(ctx context.Context, userID string) error {
	u, err := s.users.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if u.Verified {
		return ErrAlreadyVerified
	}
	link, err := s.issueLink(ctx, u.ID, PurposeVerify, "/verify", s.cfg.VerifyTTL)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, u.Email, "Verify your email", "Confirm your fintrack account: "+link)
}

// ResendVerification looks the account up by email and mails a new link.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	u, err := s.users.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	return s.SendEmailVerification(ctx, u.ID)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	t, err := s.users.ConsumeToken(ctx, token, PurposeVerify)
	if err != nil {
		return ErrInvalidToken
	}
	if err := s.users.SetVerified(ctx, t.UserID); err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	s.logger.InfoContext(ctx, "Email verified", log.FieldUserID, t.UserID)
	return nil
}

// SendPasswordReset mails a single-use reset link.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrInvalidEmail
	}
	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	link, err := s.issueLink(ctx, u.ID, PurposeReset, "/reset", s.cfg.ResetTTL)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, u.Email, "Reset your password", "Choose a new fintrack password: "+link)
}

func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < minPasswordLen {
		return ErrWeakPassword
	}
	t, err := s.users.ConsumeToken(ctx, token, PurposeReset)
	if err != nil {
		return ErrInvalidToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetPasswordHash(ctx, t.UserID, string(hash)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	s.logger.InfoContext(ctx, "Password reset", log.FieldUserID, t.UserID)
	return nil
}

func (s *Service) issueLink(ctx context.Context, userID, purpose, path string, ttl time.Duration) (string, error) {
	value := uuid.NewString()
	err := s.users.SaveToken(ctx, store.Token{
		Value:     value,
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(ttl).UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("save %s token: %w", purpose, err)
	}
	return s.cfg.BaseURL + path + "?token=" + value, nil
}

func toUser(u store.User) User {
	return User{ID: u.ID, Email: u.Email, Verified: u.Verified}
}
