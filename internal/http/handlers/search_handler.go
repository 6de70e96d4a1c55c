// README: Natural-language ride search (quota-guarded Gemini prompt parsing).
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/ai"
	"carpool/internal/apperr"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

const promptTimeout = 10 * time.Second

type PromptQuota interface {
	Use(ctx context.Context, uid types.ID) error
}

type SearchHandler struct {
	base
	rides  RideService
	quota  PromptQuota
	parser ai.PromptParser
	now    func() time.Time
}

// NewSearchHandler builds the prompt search handler. A nil parser disables the
// endpoint.
func NewSearchHandler(rides RideService, quota PromptQuota, parser ai.PromptParser, opts Options) *SearchHandler {
	return &SearchHandler{base: newBase(opts), rides: rides, quota: quota, parser: parser, now: time.Now}
}

type promptReq struct {
	Prompt string `json:"prompt" binding:"required"`
}

type promptResp struct {
	*ride.Page
	Intent *ai.SearchIntent `json:"intent"`
}

// Prompt handles POST /rides/search/prompt.
func (h *SearchHandler) Prompt(c *gin.Context) {
	if h.parser == nil {
		writeError(c, http.StatusNotFound, "Prompt search is not enabled")
		return
	}
	var req promptReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(c, http.StatusBadRequest, "Prompt is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), promptTimeout)
	defer cancel()

	if err := h.quota.Use(ctx, caller(c)); err != nil {
		h.fail(c, err)
		return
	}
	intent, err := h.parser.ParseSearchPrompt(ctx, strings.TrimSpace(req.Prompt), h.now())
	if err != nil {
		h.fail(c, apperr.Internal(err, "Could not understand the search prompt"))
		return
	}
	page, err := h.rides.SearchParams(ctx, intent.Params())
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, promptResp{Page: page, Intent: intent})
}
