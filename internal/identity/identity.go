// Package identity exposes the authenticated user to the booking
// workflow. The JWT middleware verifies the access token and stores the
// principal in the request context; JWTProvider reads it back.
package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/workflow"
)

type ctxKey struct{}

// WithPrincipal returns a copy of ctx that carries p.
func WithPrincipal(ctx context.Context, p workflow.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (workflow.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(workflow.Principal)
	if !ok || p.ID == 0 {
		return workflow.Principal{}, false
	}
	return p, true
}

// TokenRevoker revokes every refresh token of a user.
type TokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uint64) (int64, error)
}

// ErrNoPrincipal is returned by SignOut without an authenticated user.
var ErrNoPrincipal = errors.New("no authenticated user")

// JWTProvider implements workflow.IdentityProvider on top of the request
// context. Signing out revokes all refresh tokens, so the session ends
// once the current access token expires.
type JWTProvider struct {
	tokens TokenRevoker
	log    *zap.Logger
}

func NewJWTProvider(tokens TokenRevoker, log *zap.Logger) *JWTProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTProvider{tokens: tokens, log: log}
}

func (p *JWTProvider) Current(ctx context.Context) (workflow.Principal, bool) {
	return FromContext(ctx)
}

func (p *JWTProvider) SignOut(ctx context.Context) error {
	who, ok := FromContext(ctx)
	if !ok {
		return ErrNoPrincipal
	}
	n, err := p.tokens.RevokeAllForUser(ctx, who.ID)
	if err != nil {
		return err
	}
	p.log.Info("signed out", zap.Uint64("user_id", who.ID), zap.Int64("revoked_tokens", n))
	return nil
}

var _ workflow.IdentityProvider = (*JWTProvider)(nil)
