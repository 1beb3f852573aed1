package projectstore

import (
	"context"
	"fmt"

	"github.com/dataviz-jp/cartosync/pkg/session"
)

// Context is the per-operation resolved context: who the caller is and the
// credential their requests carry.
//
// Resolution is deliberately uncached: every operation re-derives it, so a
// signed-out session is noticed on the very next call.
type Context struct {
	// OwnerID is the authenticated account id; blob paths are keyed by it.
	OwnerID string

	// AccessToken is the bearer credential for this operation.
	AccessToken string
}

// ResolveContext derives the operation context from the session provider.
//
// It fails with ErrAuthRequired when no provider is configured, the session
// lookup errors, or the session carries no user identity. This check is the
// precondition for every store operation and must run before any network I/O.
func ResolveContext(ctx context.Context, sessions session.Provider) (*Context, error) {
	if sessions == nil {
		return nil, fmt.Errorf("%w: no session provider configured", ErrAuthRequired)
	}

	sess, err := sessions.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}
	if sess == nil || sess.AccessToken == "" || sess.User.ID == "" {
		return nil, fmt.Errorf("%w: session carries no user identity", ErrAuthRequired)
	}

	return &Context{
		OwnerID:     sess.User.ID,
		AccessToken: sess.AccessToken,
	}, nil
}
