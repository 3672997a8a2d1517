package authgate

import (
	"context"

	"keeper-gateway/middleware/authgate/domain"
)

type contextKey struct{}

var anonymous = &domain.AuthContext{}

// WithAuthContext anexa o AuthContext ao contexto da request.
func WithAuthContext(ctx context.Context, ac *domain.AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext retorna o AuthContext da request. Sempre não-nil: sem Extract na
// cadeia (ou antes dele), retorna o contexto anônimo.
func FromContext(ctx context.Context) *domain.AuthContext {
	if ac, ok := ctx.Value(contextKey{}).(*domain.AuthContext); ok && ac != nil {
		return ac
	}
	return anonymous
}
