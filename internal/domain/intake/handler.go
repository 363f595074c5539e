package intake

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	store *LegacyStore
}

func NewHandler(store *LegacyStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group, read, write echo.MiddlewareFunc) {
	api.GET("/intake/legacy", h.GetLegacy, read)
	api.PUT("/intake/legacy", h.PutLegacy, write)
	api.POST("/intake/validate", h.Validate, read)
}

func (h *Handler) GetLegacy(c echo.Context) error {
	p, err := h.store.Load(c.Request().Context())
	if errors.Is(err, ErrNoLegacyIntake) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PutLegacy(c echo.Context) error {
	var p PatientIntake
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := p.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.Save(c.Request().Context(), p); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// Validate lets a client check a form before submitting it for diagnosis.
func (h *Handler) Validate(c echo.Context) error {
	var p PatientIntake
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := p.Validate(); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"valid": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"valid": true})
}
