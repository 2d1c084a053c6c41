package gateway

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"cardroom/internal/auth"
)

func newBareSession(t *testing.T) *Session {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return newSession(1, auth.Account{ID: 42, Username: "alice"}, newTCPMessageConn(server), nil)
}

func TestCorrelationClaims(t *testing.T) {
	s := newBareSession(t)

	assert.True(t, s.claimCorrelation(7))
	assert.False(t, s.claimCorrelation(7), "in-flight id must be rejected")

	s.releaseCorrelation(7)
	assert.True(t, s.claimCorrelation(7), "released id is reusable")
}

func TestBadFrameBudget(t *testing.T) {
	s := newBareSession(t)

	for i := 0; i < maxBadFrames-1; i++ {
		assert.False(t, s.countBadFrame())
	}
	assert.True(t, s.countBadFrame(), "budget exhausted on frame %d", maxBadFrames)
}
