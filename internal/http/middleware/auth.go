// README: Bearer-token auth middleware; puts the caller's actor and claims on the gin context.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scrapyard/internal/access"
	"scrapyard/internal/auth"
	"scrapyard/internal/types"
)

const (
	ctxKeyActor  = "caller_actor"
	ctxKeyClaims = "caller_claims"
)

// TokenVerifier validates access tokens. *auth.Issuer satisfies it.
type TokenVerifier interface {
	VerifyAccess(raw string) (*auth.Claims, error)
}

// Auth rejects requests without a valid "Authorization: Bearer <token>" header.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := verifier.VerifyAccess(raw)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Set(ctxKeyClaims, claims)
		c.Set(ctxKeyActor, access.Actor{
			ID:       types.ID(claims.User.ID),
			Email:    claims.User.Email,
			IsClient: claims.User.IsClient,
			IsSeller: claims.User.IsSeller,
		})
		c.Next()
	}
}

// RequireRole answers 403 unless the authenticated caller holds role.
func RequireRole(role access.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := access.Require(Caller(c), role); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requires " + string(role) + " role"})
			return
		}
		c.Next()
	}
}

// Caller returns the actor set by Auth, or the zero actor.
func Caller(c *gin.Context) access.Actor {
	v, ok := c.Get(ctxKeyActor)
	if !ok {
		return access.Actor{}
	}
	a, _ := v.(access.Actor)
	return a
}

func CallerClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ctxKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
