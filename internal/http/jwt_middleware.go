package http

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flowdesk/internal/apperr"
	"flowdesk/internal/domain"
)

const authUserKey = "auth_user"

// Authenticator resuelve el usuario vivo detrás de un access token.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (domain.User, error)
}

// JWTAuthMiddleware valida el bearer token y guarda el usuario actual en el
// contexto. El usuario se relee en cada request.
func JWTAuthMiddleware(logger *zap.Logger, auth Authenticator, exposeDetail bool) gin.HandlerFunc {
	resp := newResponder(logger, exposeDetail)
	return func(c *gin.Context) {
		if auth == nil {
			resp.fail(c, apperr.Internal(errors.New("authenticator not configured")))
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
			resp.fail(c, errUnauthorized())
			return
		}
		token := strings.TrimSpace(header[len("Bearer "):])
		if token == "" {
			resp.fail(c, errUnauthorized())
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			resp.fail(c, err)
			return
		}

		c.Set(authUserKey, user)
		c.Next()
	}
}

// CurrentUser obtiene el usuario autenticado desde el contexto.
func CurrentUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(authUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}

func errUnauthorized() error {
	return apperr.New(apperr.KindUnauthorized, apperr.MessageUnauthorized)
}
