package projectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataviz-jp/cartosync/pkg/session"
)

type fakeSessions struct {
	sess *session.Session
	err  error
}

func (f fakeSessions) GetSession(ctx context.Context) (*session.Session, error) {
	return f.sess, f.err
}

func TestResolveContext(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves owner and token", func(t *testing.T) {
		rctx, err := ResolveContext(ctx, fakeSessions{
			sess: &session.Session{AccessToken: "tok", User: session.User{ID: "owner-1"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "owner-1", rctx.OwnerID)
		assert.Equal(t, "tok", rctx.AccessToken)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := ResolveContext(ctx, nil)
		assert.True(t, IsAuthRequired(err))
	})

	t.Run("session lookup error", func(t *testing.T) {
		_, err := ResolveContext(ctx, fakeSessions{err: errors.New("auth service down")})
		assert.True(t, IsAuthRequired(err))
	})

	t.Run("no session", func(t *testing.T) {
		_, err := ResolveContext(ctx, fakeSessions{err: session.ErrNoSession})
		assert.True(t, IsAuthRequired(err))
	})

	t.Run("session without user", func(t *testing.T) {
		_, err := ResolveContext(ctx, fakeSessions{
			sess: &session.Session{AccessToken: "tok"},
		})
		assert.True(t, IsAuthRequired(err))
	})

	t.Run("session without token", func(t *testing.T) {
		_, err := ResolveContext(ctx, fakeSessions{
			sess: &session.Session{User: session.User{ID: "owner-1"}},
		})
		assert.True(t, IsAuthRequired(err))
	})
}
