package plans

import (
	"github.com/gin-gonic/gin"

	"github.com/nestfolio/backend/pkg/response"
)

// Handler handles the public plan catalog.
type Handler struct {
	repo *Repository
}

// NewHandler creates a plans handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /api/plans. Public; no session required.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListActive(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load plans")
		return
	}
	response.OK(c, list)
}
