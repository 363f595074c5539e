package imagestore

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler serves image upload and download.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts image routes. read and write guard the GET and the
// mutating routes respectively.
func (h *Handler) RegisterRoutes(api *echo.Group, read, write echo.MiddlewareFunc) {
	api.POST("/images", h.Upload, write)
	api.GET("/images/:id", h.Download, read)
	api.GET("/images/:id/metadata", h.GetMetadata, read)
	api.DELETE("/images/:id", h.Delete, write)
}

func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	uid, _ := c.Get("user_id").(string)
	meta := Metadata{
		FileName:  file.Filename,
		CreatedBy: uid,
	}

	result, err := h.store.Upload(c.Request().Context(), meta, src)
	if err != nil {
		return uploadError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrEmptyFile):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Download(c echo.Context) error {
	rc, meta, err := h.store.Open(c.Request().Context(), c.Param("id"))
	if err != nil {
		return lookupError(err)
	}
	defer rc.Close()

	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) GetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return lookupError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func lookupError(err error) error {
	if errors.Is(err, ErrImageNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
