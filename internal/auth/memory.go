package auth

import (
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Manager keeps accounts and sessions in process, for tests and
// single-binary throwaway deployments.
type Manager struct {
	mu sync.Mutex

	nextAccountID uint64
	sessionTTL    time.Duration
	sessions      map[string]sessionRecord
	accountsByID  map[uint64]accountRecord
	accountsByKey map[string]uint64
}

type sessionRecord struct {
	AccountID uint64
	ExpiresAt time.Time
}

type accountRecord struct {
	Account
	PasswordHash  []byte
	LastLoginTime time.Time
}

func NewManager() *Manager {
	return &Manager{
		nextAccountID: 100000, // start from a readable non-trivial range
		sessionTTL:    defaultSessionTTL,
		sessions:      make(map[string]sessionRecord),
		accountsByID:  make(map[uint64]accountRecord),
		accountsByKey: make(map[string]uint64),
	}
}

func (m *Manager) Close() error { return nil }

func (m *Manager) Register(username, password string) (Account, string, error) {
	if err := validateUsername(username); err != nil {
		return Account{}, "", err
	}
	if err := validatePassword(password); err != nil {
		return Account{}, "", err
	}

	normalized := normalizeUsername(username)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accountsByKey[normalized]; exists {
		return Account{}, "", ErrUsernameTaken
	}

	m.nextAccountID++
	now := time.Now()
	rec := accountRecord{
		Account:       Account{ID: m.nextAccountID, Username: normalized, Privilege: PrivNormal},
		PasswordHash:  passwordHash,
		LastLoginTime: now,
	}
	m.accountsByID[rec.ID] = rec
	m.accountsByKey[normalized] = rec.ID

	return rec.Account, m.issueSessionLocked(rec.ID, now), nil
}

func (m *Manager) Login(username, password string) (Account, string, error) {
	normalized := normalizeUsername(username)
	if normalized == "" || password == "" {
		return Account{}, "", ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accountID, exists := m.accountsByKey[normalized]
	if !exists {
		return Account{}, "", ErrInvalidCredentials
	}
	rec := m.accountsByID[accountID]
	if len(rec.PasswordHash) == 0 {
		return Account{}, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
		return Account{}, "", ErrInvalidCredentials
	}

	now := time.Now()
	rec.LastLoginTime = now
	m.accountsByID[accountID] = rec
	return rec.Account, m.issueSessionLocked(accountID, now), nil
}

func (m *Manager) ResolveSession(token string) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token == "" {
		return Account{}, false
	}
	rec, exists := m.sessions[token]
	if !exists {
		return Account{}, false
	}
	now := time.Now()
	if !now.Before(rec.ExpiresAt) {
		delete(m.sessions, token)
		return Account{}, false
	}
	rec.ExpiresAt = now.Add(m.sessionTTL)
	m.sessions[token] = rec
	return m.accountsByID[rec.AccountID].Account, true
}

func (m *Manager) Logout(token string) {
	if token == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

func (m *Manager) SetPrivilege(accountID uint64, priv Privilege) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, exists := m.accountsByID[accountID]
	if !exists {
		return ErrInvalidCredentials
	}
	rec.Privilege = priv
	m.accountsByID[accountID] = rec
	return nil
}

func (m *Manager) issueSessionLocked(accountID uint64, now time.Time) string {
	token := mustToken()
	m.sessions[token] = sessionRecord{
		AccountID: accountID,
		ExpiresAt: now.Add(m.sessionTTL),
	}
	return token
}
