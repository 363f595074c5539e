package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request bodies. uploadLimit applies to POSTs on paths ending
// in /images (multipart image uploads); every other request gets jsonLimit.
func BodyLimit(jsonLimit, uploadLimit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := jsonLimit
			if req.Method == http.MethodPost && strings.HasSuffix(strings.TrimSuffix(req.URL.Path, "/"), "/images") {
				// multipart framing on top of the image bytes
				limit = uploadLimit + 64<<10
			}

			if req.ContentLength > limit {
				return tooLarge(limit)
			}

			req.Body = &cappedBody{ReadCloser: req.Body, limit: limit}
			return next(c)
		}
	}
}

// cappedBody errors once a body without a truthful Content-Length reads past
// its limit. The read that crosses the limit returns no data.
type cappedBody struct {
	io.ReadCloser
	read, limit int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.read > b.limit {
		return 0, tooLarge(b.limit)
	}
	if room := b.limit - b.read + 1; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		return 0, tooLarge(b.limit)
	}
	return n, err
}

func tooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
}
