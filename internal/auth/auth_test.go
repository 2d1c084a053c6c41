package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runServiceSuite(t *testing.T, svc Service) {
	account, token, err := svc.Register("Alice_01", "hunter22")
	require.NoError(t, err)
	assert.NotZero(t, account.ID)
	assert.Equal(t, "alice_01", account.Username)
	assert.Equal(t, PrivNormal, account.Privilege)
	require.NotEmpty(t, token)

	resolved, ok := svc.ResolveSession(token)
	require.True(t, ok)
	assert.Equal(t, account.ID, resolved.ID)

	_, _, err = svc.Register("alice_01", "different")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, _, err = svc.Login("alice_01", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	again, token2, err := svc.Login("Alice_01", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.ID)
	assert.NotEqual(t, token, token2)

	svc.Logout(token)
	_, ok = svc.ResolveSession(token)
	assert.False(t, ok)
	_, ok = svc.ResolveSession(token2)
	assert.True(t, ok)

	require.NoError(t, svc.SetPrivilege(account.ID, PrivModerator))
	resolved, ok = svc.ResolveSession(token2)
	require.True(t, ok)
	assert.Equal(t, PrivModerator, resolved.Privilege)

	assert.Error(t, svc.SetPrivilege(999999, PrivAdmin))
}

func TestMemoryService(t *testing.T) {
	svc := NewManager()
	defer svc.Close()
	runServiceSuite(t, svc)
}

func TestSQLiteService(t *testing.T) {
	svc, err := NewSQLiteManager(filepath.Join(t.TempDir(), "auth.db"), time.Hour)
	require.NoError(t, err)
	defer svc.Close()
	runServiceSuite(t, svc)
}

func TestValidation(t *testing.T) {
	svc := NewManager()
	defer svc.Close()

	_, _, err := svc.Register("x", "longenough")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, _, err = svc.Register("validname", "short")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, ok := svc.ResolveSession("")
	assert.False(t, ok)
	_, ok = svc.ResolveSession("bogus-token")
	assert.False(t, ok)
}

func TestPrivilegeString(t *testing.T) {
	assert.Equal(t, "normal", PrivNormal.String())
	assert.Equal(t, "moderator", PrivModerator.String())
	assert.Equal(t, "admin", PrivAdmin.String())
}
