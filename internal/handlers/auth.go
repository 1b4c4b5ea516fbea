package handlers

import (
	"strings"

	"github.com/nimasrn/cash-ledger/internal/model"
	xhttp "github.com/nimasrn/cash-ledger/pkg/http"
)

const identityKey = "identity"

type IdentityResolver interface {
	Resolve(token string) (*model.Identity, error)
}

// Auth resolves the bearer token of a request and gates handlers on it.
type Auth struct {
	resolver IdentityResolver
}

func NewAuth(resolver IdentityResolver) *Auth {
	return &Auth{resolver: resolver}
}

func (a *Auth) Authenticated(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		header := string(ctx.Request.Header.Peek("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(ctx, xhttp.StatusUnauthorized, "authentication required")
			return
		}

		identity, err := a.resolver.Resolve(strings.TrimSpace(token))
		if err != nil {
			writeError(ctx, xhttp.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx.SetUserValue(identityKey, identity)
		next(ctx)
	}
}

// RequirePermission authenticates the caller and lets through admins and
// holders of slug.
func (a *Auth) RequirePermission(slug string, next xhttp.RequestHandler) xhttp.RequestHandler {
	return a.Authenticated(func(ctx *xhttp.RequestCtx) {
		if !identityFrom(ctx).HasPermission(slug) {
			writeError(ctx, xhttp.StatusForbidden, "you do not have permission to perform this action")
			return
		}
		next(ctx)
	})
}

func identityFrom(ctx *xhttp.RequestCtx) *model.Identity {
	identity, _ := ctx.UserValue(identityKey).(*model.Identity)
	return identity
}
