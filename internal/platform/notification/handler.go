package notification

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the toast store over HTTP via Echo.
type Handler struct {
	store *Store
}

// NewHandler creates a new Handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the toast routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	g.DELETE("/notifications/:id", h.HandleDismiss)
}

// HandleList handles GET /notifications.
func (h *Handler) HandleList(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.List())
}

// HandleDismiss handles DELETE /notifications/:id. Dismissing an unknown
// toast is not an error.
func (h *Handler) HandleDismiss(c echo.Context) error {
	h.store.Remove(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}
