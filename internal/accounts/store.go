// Package accounts is the pluggable credential-lookup collaborator spec.md
// §1 describes as "an opaque key-value backing for credential lookup" —
// the login server core never talks to storage directly, only a registered
// dispatcher handler does.
package accounts

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")
	ErrCharacterExists    = errors.New("accounts: character name already exists")
	ErrCharacterLimit     = errors.New("accounts: character limit reached")
	ErrCharacterNotFound  = errors.New("accounts: character not found")
)

// Character mirrors the teacher's CharacterInfo shape.
type Character struct {
	ID       int
	Name     string
	Username string
	Level    int
	Class    int
	Gender   int
	MapID    int
	X, Y     int
}

// Store is the account/character storage interface. Implementations may be
// backed by MySQL (MySQLStore) or held in memory (MemoryStore, used in
// tests and by default when no database is configured).
type Store interface {
	Login(ctx context.Context, username, password string) (bool, error)
	GetCharacters(ctx context.Context, username string) ([]Character, error)
	CreateCharacter(ctx context.Context, username, name string, class, gender int) error
	DeleteCharacter(ctx context.Context, name string) error
}

const maxCharactersPerAccount = 8

// MemoryStore is an in-memory Store, used for tests and as the default when
// the login server is run without a configured MySQL backing.
type MemoryStore struct {
	mu          sync.Mutex
	credentials map[string]string
	characters  []Character
	nextID      int
}

// NewMemoryStore creates an empty in-memory store seeded with the given
// username/password pairs.
func NewMemoryStore(seedCredentials map[string]string) *MemoryStore {
	creds := make(map[string]string, len(seedCredentials))
	for u, p := range seedCredentials {
		creds[u] = p
	}
	return &MemoryStore{credentials: creds, nextID: 1}
}

func (m *MemoryStore) Login(_ context.Context, username, password string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want, ok := m.credentials[username]
	if !ok {
		return false, nil
	}
	return want == password, nil
}

func (m *MemoryStore) GetCharacters(_ context.Context, username string) ([]Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Character
	for _, c := range m.characters {
		if c.Username == username {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateCharacter(_ context.Context, username, name string, class, gender int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, c := range m.characters {
		if c.Name == name {
			return ErrCharacterExists
		}
		if c.Username == username {
			count++
		}
	}
	if count >= maxCharactersPerAccount {
		return ErrCharacterLimit
	}

	m.characters = append(m.characters, Character{
		ID:       m.nextID,
		Name:     name,
		Username: username,
		Level:    1,
		Class:    class,
		Gender:   gender,
		MapID:    1,
		X:        100,
		Y:        100,
	})
	m.nextID++
	return nil
}

func (m *MemoryStore) DeleteCharacter(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.characters {
		if c.Name == name {
			m.characters = append(m.characters[:i], m.characters[i+1:]...)
			return nil
		}
	}
	return ErrCharacterNotFound
}
