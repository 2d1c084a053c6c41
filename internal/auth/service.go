package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	tokenBytes        = 32
)

var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{2,31}$`)

// Privilege gates moderation and admin scope commands at dispatch time.
type Privilege int

const (
	PrivNormal Privilege = iota
	PrivModerator
	PrivAdmin
)

func (p Privilege) String() string {
	switch p {
	case PrivModerator:
		return "moderator"
	case PrivAdmin:
		return "admin"
	default:
		return "normal"
	}
}

type Account struct {
	ID        uint64
	Username  string
	Privilege Privilege
}

// Service is the account/session contract consumed by the gateway handshake
// and by privilege checks in the dispatcher.
type Service interface {
	Register(username, password string) (Account, string, error)
	Login(username, password string) (Account, string, error)
	ResolveSession(token string) (Account, bool)
	Logout(token string)
	SetPrivilege(accountID uint64, priv Privilege) error
	Close() error
}

const (
	AuthModeMemory   = "memory"
	AuthModeSQLite   = "sqlite"
	AuthModePostgres = "postgres"
)

func authModeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	switch raw {
	case "", AuthModeSQLite, "local":
		return AuthModeSQLite
	case AuthModeMemory, "mem":
		return AuthModeMemory
	case AuthModePostgres, "db", "postgresql":
		return AuthModePostgres
	default:
		return raw
	}
}

func NewServiceFromEnv() (Service, string, error) {
	mode := authModeFromEnv()

	switch mode {
	case AuthModeSQLite:
		svc, err := NewSQLiteManagerFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return svc, mode, nil
	case AuthModePostgres:
		svc, err := NewPostgresManagerFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return svc, mode, nil
	case AuthModeMemory:
		return NewManager(), mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid AUTH_MODE %q (supported: %s, %s, %s)",
			mode, AuthModeMemory, AuthModeSQLite, AuthModePostgres)
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(strings.TrimSpace(username)) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

func authSessionTTLFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv("AUTH_SESSION_TTL"))
	if raw == "" {
		return defaultSessionTTL
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultSessionTTL
	}
	return d
}

func mustToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
