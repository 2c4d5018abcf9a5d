package medicine

import (
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
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "pharmacist"))
	readGroup.GET("/medicines", h.Search)
	readGroup.GET("/medicines/low-stock", h.ListBelowMinStock)
	readGroup.GET("/medicines/:id", h.Get)
	readGroup.GET("/medicines/:id/movements", h.Movements)

	writeGroup := api.Group("", auth.RequireRole("admin", "pharmacist"))
	writeGroup.POST("/medicines", h.Create)
	writeGroup.POST("/medicines/:id/adjust", h.Adjust)
}

func (h *Handler) Create(c echo.Context) error {
	var m Medicine
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &m); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListBelowMinStock(c echo.Context) error {
	items, err := h.svc.ListBelowMinStock(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *Handler) Adjust(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req adjustRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if err := h.svc.AdjustStock(ctx, id, req.Delta, req.Reason); err != nil {
		return apperr.ToHTTP(err)
	}
	m, err := h.svc.Get(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Movements(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Movements(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
