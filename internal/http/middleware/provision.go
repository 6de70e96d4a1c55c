// README: First-token user provisioning for externally issued tokens.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"carpool/internal/apperr"
	"carpool/internal/modules/identity"
)

type Provisioner interface {
	Provision(ctx context.Context, cmd identity.ProvisionCommand) (*identity.User, error)
}

// Provision makes sure the authenticated caller has a user row, creating it
// from the token's email and name claims. It must run after Auth.
func Provision(p Provisioner) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := p.Provision(c.Request.Context(), identity.ProvisionCommand{
			UserID:   CallerUID(c),
			Email:    CallerClaim(c, "email"),
			Name:     CallerClaim(c, "name"),
			PhotoURL: CallerClaim(c, "picture"),
		})
		if err != nil {
			kind := apperr.KindOf(err)
			msg := apperr.Message(err)
			if kind == apperr.KindInternal {
				_ = c.Error(err)
				msg = "internal error"
			}
			c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{"message": msg})
			return
		}
		c.Next()
	}
}
