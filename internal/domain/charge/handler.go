package charge

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

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
	readGroup := api.Group("", auth.RequireRole("admin", "cashier", "registrar"))
	readGroup.GET("/charges/:id", h.Get)
	readGroup.GET("/charges/:id/details", h.Details)
	readGroup.GET("/charges", h.List)
	readGroup.GET("/settlement", h.Settlement)

	cashierGroup := api.Group("", auth.RequireRole("admin", "cashier"))
	cashierGroup.POST("/charges", h.Create)
	cashierGroup.POST("/charges/:id/pay", h.Pay)
	cashierGroup.POST("/charges/:id/refund", h.Refund)
}

type createRequest struct {
	RegistrationID  uuid.UUID   `json:"registration_id"`
	PrescriptionIDs []uuid.UUID `json:"prescription_ids"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.RegistrationID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "registration_id is required")
	}
	charge, err := h.svc.Create(c.Request().Context(), req.RegistrationID, req.PrescriptionIDs)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, charge)
}

type payRequest struct {
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Method        string          `json:"method"`
	TransactionNo *string         `json:"transaction_no,omitempty"`
}

func (h *Handler) Pay(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req payRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	charge, err := h.svc.Pay(ctx, id, req.PaidAmount, req.Method, req.TransactionNo,
		auth.OperatorIDFromContext(ctx), auth.OperatorNameFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, charge)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Refund(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	charge, err := h.svc.Refund(ctx, id, req.Reason,
		auth.OperatorIDFromContext(ctx), auth.OperatorNameFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, charge)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	charge, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, charge)
}

func (h *Handler) Details(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	details, err := h.svc.Details(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, details)
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

func (h *Handler) Settlement(c echo.Context) error {
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from time")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to time")
	}
	summary, err := h.svc.Settlement(c.Request().Context(), from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, summary)
}
