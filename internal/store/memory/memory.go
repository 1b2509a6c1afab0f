package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

var (
	_ store.TransactionStore = (*Store)(nil)
	_ store.UserStore        = (*Store)(nil)
	_ store.Pinger           = (*Store)(nil)
)

// Store keeps every collection in process memory. Dates are kept as the ISO
// strings they arrive with.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	items  map[string][]store.Document
	users  map[string]store.User
	emails map[string]string
	tokens map[string]store.Token
}

func New() *Store {
	return &Store{
		now:    time.Now,
		items:  make(map[string][]store.Document),
		users:  make(map[string]store.User),
		emails: make(map[string]string),
		tokens: make(map[string]store.Token),
	}
}

// WithClock replaces the server timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Add(_ context.Context, userID string, t core.Transaction) (store.Document, error) {
	if err := t.Validate(); err != nil {
		return store.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := store.NewDocument(uuid.NewString(), t, t.Date, s.now().UTC())
	s.items[userID] = append(s.items[userID], doc)
	return cloneDoc(doc), nil
}

func (s *Store) Query(_ context.Context, userID string) ([]store.Document, error) {
	s.mu.Lock()
	out := make([]store.Document, 0, len(s.items[userID]))
	for _, d := range s.items[userID] {
		out = append(out, cloneDoc(d))
	}
	s.mu.Unlock()

	slices.SortStableFunc(out, func(a, b store.Document) int {
		return strings.Compare(dateKey(b), dateKey(a))
	})
	return out, nil
}

func (s *Store) Get(_ context.Context, userID, id string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.items[userID] {
		if d.ID == id {
			return cloneDoc(d), nil
		}
	}
	return store.Document{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateUser(_ context.Context, u store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(u.Email)
	if _, ok := s.emails[key]; ok {
		return fmt.Errorf("user %s: %w", key, store.ErrDuplicate)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	s.emails[key] = u.ID
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[normalizeEmail(email)]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) SetVerified(_ context.Context, userID string) error {
	return s.updateUser(userID, func(u *store.User) { u.Verified = true })
}

func (s *Store) SetPasswordHash(_ context.Context, userID, hash string) error {
	return s.updateUser(userID, func(u *store.User) { u.PasswordHash = hash })
}

func (s *Store) SaveToken(_ context.Context, t store.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Value] = t
	return nil
}

func (s *Store) ConsumeToken(_ context.Context, value, purpose string) (store.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok || t.Purpose != purpose {
		return store.Token{}, store.ErrNotFound
	}
	delete(s.tokens, value)
	if s.now().After(t.ExpiresAt) {
		return store.Token{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) updateUser(id string, fn func(*store.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&u)
	s.users[id] = u
	return nil
}

func cloneDoc(d store.Document) store.Document {
	fields := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	return store.Document{ID: d.ID, Fields: fields}
}

// dateKey orders documents by their normalised timestamp.
func dateKey(d store.Document) string {
	switch v := d.Fields[store.FieldDate].(type) {
	case time.Time:
		return core.FormatISO(v)
	case string:
		if t, ok := core.ParseISODate(v); ok {
			return core.FormatISO(t)
		}
	}
	return ""
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
