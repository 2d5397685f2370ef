package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GzipRequestMiddleware inflates request bodies sent with Content-Encoding
// gzip. A body that inflates past maxBytes fails the read with 413; maxBytes
// <= 0 disables the cap.
func GzipRequestMiddleware(maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !acceptsGzip(req.Header.Values(echo.HeaderContentEncoding)) {
				return next(c)
			}

			zr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			req.Body = &inflatedBody{zr: zr, raw: req.Body, left: maxBytes, capped: maxBytes > 0}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func acceptsGzip(values []string) bool {
	for _, v := range values {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "gzip") {
				return true
			}
		}
	}
	return false
}

// inflatedBody streams the decompressed payload and enforces the size cap.
type inflatedBody struct {
	zr     *gzip.Reader
	raw    io.ReadCloser
	left   int64
	capped bool
}

func (b *inflatedBody) Read(p []byte) (int, error) {
	if !b.capped {
		return b.zr.Read(p)
	}
	if b.left < 0 {
		return 0, echo.ErrStatusRequestEntityTooLarge
	}
	// allow one byte past the cap so an oversized body is detected rather
	// than silently cut at the boundary
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.zr.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		return 0, echo.ErrStatusRequestEntityTooLarge
	}
	return n, err
}

func (b *inflatedBody) Close() error {
	zerr := b.zr.Close()
	if err := b.raw.Close(); err != nil {
		return err
	}
	return zerr
}
