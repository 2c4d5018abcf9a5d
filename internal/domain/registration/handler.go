package registration

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/auth"
	"github.com/Bernardyao/HMS-backend-sub001/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "registrar", "physician", "cashier"))
	readGroup.GET("/registrations/:id", h.Get)
	readGroup.GET("/registrations/:id/history", h.History)
	readGroup.GET("/registrations", h.List)

	writeGroup := api.Group("", auth.RequireRole("admin", "registrar"))
	writeGroup.POST("/registrations", h.Register)
	writeGroup.POST("/registrations/:id/cancel", h.Cancel)

	clinicalGroup := api.Group("", auth.RequireRole("admin", "physician"))
	clinicalGroup.POST("/registrations/:id/start", h.StartConsultation)
	clinicalGroup.POST("/registrations/:id/complete", h.Complete)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reg, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, reg)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	reg, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) List(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	reg, err := h.svc.Cancel(ctx, id, auth.OperatorIDFromContext(ctx), auth.OperatorNameFromContext(ctx), req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) StartConsultation(c echo.Context) error {
	return h.transition(c, h.svc.StartConsultation)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, h.svc.Complete)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id uuid.UUID, operatorID, operatorName string) (*Registration, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	reg, err := fn(ctx, id, auth.OperatorIDFromContext(ctx), auth.OperatorNameFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, reg)
}
