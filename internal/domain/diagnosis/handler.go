package diagnosis

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eyedx/eyedx/internal/domain/intake"
	"github.com/eyedx/eyedx/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, read, write echo.MiddlewareFunc) {
	api.POST("/diagnoses", h.Diagnose, write)
	api.GET("/diagnoses/definitive-values", h.DefinitiveValues, read)

	api.GET("/records", h.ListRecords, read)
	api.POST("/records", h.CreateRecord, write)
	api.GET("/records/:id", h.GetRecord, read)
	api.PUT("/records/:id/definitive-diagnosis", h.SetDefinitiveDiagnosis, write)
	api.DELETE("/records/:id", h.DeleteRecord, write)
	api.POST("/records/delete-by-result", h.DeleteByResult, write)
}

type recordView struct {
	*Record
	Status  string  `json:"status"`
	Ranking Ranking `json:"ranking"`
}

func viewOf(r *Record) recordView {
	return recordView{Record: r, Status: r.Status(), Ranking: Rank(r.Classification)}
}

type createRecordRequest struct {
	Patient  intake.PatientIntake `json:"patient"`
	RawText  string               `json:"raw_text"`
	ImageURI string               `json:"image_uri"`
}

type definitiveDiagnosisRequest struct {
	Value string `json:"value"`
}

type deleteByResultRequest struct {
	RawText string `json:"raw_text"`
}

func (h *Handler) Diagnose(c echo.Context) error {
	var p intake.PatientIntake
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Diagnose(c.Request().Context(), p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) DefinitiveValues(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"values": DefinitiveDiagnoses()})
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.CreateRecord(c.Request().Context(), req.Patient, req.RawText, req.ImageURI)
	if errors.Is(err, ErrParse) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, viewOf(rec))
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.ListRecords(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	page := pagination.Page(items, pg)
	views := make([]recordView, 0, len(page))
	for _, r := range page {
		views = append(views, viewOf(r))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, len(items), pg).WithLinks("/api/v1/records"))
}

func (h *Handler) GetRecord(c echo.Context) error {
	rec, err := h.svc.GetRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, viewOf(rec))
}

func (h *Handler) SetDefinitiveDiagnosis(c echo.Context) error {
	var req definitiveDiagnosisRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.UpdateDefinitiveDiagnosis(c.Request().Context(), c.Param("id"), req.Value)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, viewOf(rec))
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	ok, err := h.svc.Remove(c.Request().Context(), &Record{ID: c.Param("id")})
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteByResult removes the first record holding exactly this classifier
// response, the way the mobile client has always deleted.
func (h *Handler) DeleteByResult(c echo.Context) error {
	var req deleteByResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.RawText == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "raw_text is required")
	}
	ok, err := h.svc.RemoveByRawText(c.Request().Context(), req.RawText)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deleted": ok})
}

func httpError(err error) error {
	switch {
	case intake.IsValidationError(err), errors.Is(err, ErrInvalidDiagnosis):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
