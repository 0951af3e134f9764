package queue

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medq/medq/internal/platform/auth"
)

type Handler struct {
	session *Session
}

func NewHandler(session *Session) *Handler {
	return &Handler{session: session}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/queue", h.GetQueue)

	// Joining: patients enqueue themselves, reception enqueues walk-ins.
	api.POST("/queue", h.JoinQueue, auth.RequireRole(auth.RolePatient, auth.RoleReceptionist))
	api.DELETE("/queue/:id", h.RemoveEntry, auth.RequireRole(auth.RoleReceptionist))

	// Consultation flow – doctor
	doctorOnly := auth.RequireRole(auth.RoleDoctor)
	api.POST("/queue/call-next", h.CallNext, doctorOnly)
	api.POST("/queue/:id/start", h.StartConsultation, doctorOnly)
	api.POST("/queue/:id/complete", h.CompleteConsultation, doctorOnly)
	api.POST("/queue/:id/no-show", h.MarkNoShow, auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))

	api.GET("/queue/position/:patientId", h.GetPosition,
		auth.RequireRole(auth.RolePatient, auth.RoleReceptionist, auth.RoleDoctor))
	api.GET("/queue/analytics", h.GetAnalytics, auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
}

type joinRequest struct {
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Reason    string `json:"reason"`
}

type callNextRequest struct {
	DoctorID string `json:"doctor_id"`
}

func (h *Handler) GetQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.State())
}

// JoinQueue enqueues a patient. patient_id defaults to the caller.
func (h *Handler) JoinQueue(c echo.Context) error {
	var req joinRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == "" {
		req.PatientID = auth.UserIDFromContext(c.Request().Context())
	}
	p := h.session.Join(c.Request().Context(), req.PatientID, req.Name, req.Email, req.Reason)
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) RemoveEntry(c echo.Context) error {
	if !h.session.Remove(c.Request().Context(), c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// CallNext calls the next waiting patient. doctor_id defaults to the caller.
func (h *Handler) CallNext(c echo.Context) error {
	var req callNextRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if req.DoctorID == "" {
		req.DoctorID = auth.UserIDFromContext(c.Request().Context())
	}
	p := h.session.CallNext(c.Request().Context(), req.DoctorID)
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no patients waiting in queue")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) StartConsultation(c echo.Context) error {
	p := h.session.StartConsultation(c.Request().Context(), c.Param("id"))
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CompleteConsultation(c echo.Context) error {
	p := h.session.CompleteConsultation(c.Request().Context(), c.Param("id"))
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	p := h.session.MarkNoShow(c.Request().Context(), c.Param("id"))
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPosition(c echo.Context) error {
	p := h.session.Position(c.Param("patientId"))
	if p == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient is not waiting in queue")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetAnalytics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Analytics())
}
