package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestUpgradeMissingCookieRejected(t *testing.T) {
	v := &stubValidator{did: "alice"}
	s, _ := newTestServer(t, time.Second, v)

	ctx := &fasthttp.RequestCtx{}
	s.handleUpgrade(ctx)

	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	v.mu.Lock()
	assert.Empty(t, v.tokens, "validator must not be consulted without a credential")
	v.mu.Unlock()
}

func TestUpgradeInvalidSessionRejected(t *testing.T) {
	v := &stubValidator{err: errors.New("no such session")}
	s, _ := newTestServer(t, time.Second, v)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetCookie("session", "stale-token")
	s.handleUpgrade(ctx)

	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	v.mu.Lock()
	require.Len(t, v.tokens, 1)
	assert.Equal(t, "stale-token", v.tokens[0])
	v.mu.Unlock()
}

// A valid session passes the gate; the handshake itself then fails because
// the request is not a WebSocket upgrade, which must not read as 401.
func TestUpgradeValidSessionPassesGate(t *testing.T) {
	v := &stubValidator{did: "alice"}
	s, _ := newTestServer(t, time.Second, v)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetCookie("session", "good-token")
	s.handleUpgrade(ctx)

	assert.NotEqual(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	v.mu.Lock()
	require.Len(t, v.tokens, 1)
	v.mu.Unlock()
}
