// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"github.com/gin-gonic/gin"

	"carpool/internal/apperr"
	"carpool/internal/http/middleware"
	"carpool/internal/types"
)

type errorResponse struct {
	Message string `json:"message"`
}

// Options carries the cross-cutting settings every handler shares.
type Options struct {
	// Production hides internal error details from clients.
	Production bool
}

type base struct {
	production bool
}

func newBase(opts Options) base {
	return base{production: opts.Production}
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Message: msg})
}

// fail maps an error to its status by kind. Internal errors are attached to
// the context for the access log.
func (b base) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)
	if kind == apperr.KindInternal {
		_ = c.Error(err)
		if b.production {
			msg = "internal error"
		}
	}
	writeError(c, kind.HTTPStatus(), msg)
}

func param(c *gin.Context, name string) types.ID {
	return types.ID(c.Param(name))
}

func caller(c *gin.Context) types.ID {
	return middleware.CallerUID(c)
}
