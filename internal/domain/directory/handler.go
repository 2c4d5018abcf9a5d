package directory

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/apperr"
	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/auth"
	"github.com/Bernardyao/HMS-backend-sub001/pkg/pagination"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "registrar", "physician", "pharmacist", "cashier"))
	g.GET("/departments", h.ListDepartments)
	g.GET("/departments/:id/doctors", h.ListDoctors)
	g.GET("/patients/:id", h.GetPatient)
	g.GET("/patients", h.SearchPatients)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	items, err := h.repo.ListDepartments(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.repo.ListDoctorsByDepartment(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.repo.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.repo.SearchPatients(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
