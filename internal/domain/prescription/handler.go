package prescription

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
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "pharmacist", "cashier"))
	readGroup.GET("/prescriptions/:id", h.Get)
	readGroup.GET("/prescriptions/:id/items", h.Items)
	readGroup.GET("/prescriptions/:id/history", h.History)
	readGroup.GET("/prescriptions", h.List)

	authorGroup := api.Group("", auth.RequireRole("admin", "physician"))
	authorGroup.POST("/prescriptions", h.Create)
	authorGroup.POST("/prescriptions/:id/issue", h.Issue)

	pharmacyGroup := api.Group("", auth.RequireRole("admin", "pharmacist"))
	pharmacyGroup.POST("/prescriptions/:id/review", h.Review)
	pharmacyGroup.POST("/prescriptions/:id/dispense", h.Dispense)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rx, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rx, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) Items(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.Items(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
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

func (h *Handler) Issue(c echo.Context) error {
	return h.transition(c, h.svc.Issue)
}

func (h *Handler) Review(c echo.Context) error {
	return h.transition(c, h.svc.Review)
}

func (h *Handler) Dispense(c echo.Context) error {
	return h.transition(c, h.svc.Dispense)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id uuid.UUID, operatorID, operatorName string) (*Prescription, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	rx, err := fn(ctx, id, auth.OperatorIDFromContext(ctx), auth.OperatorNameFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rx)
}
