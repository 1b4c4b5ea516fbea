package xhttp

import "github.com/valyala/fasthttp"

const (
	StatusOK                    = fasthttp.StatusOK
	StatusCreated               = fasthttp.StatusCreated
	StatusNoContent             = fasthttp.StatusNoContent
	StatusBadRequest            = fasthttp.StatusBadRequest
	StatusUnauthorized          = fasthttp.StatusUnauthorized
	StatusForbidden             = fasthttp.StatusForbidden
	StatusNotFound              = fasthttp.StatusNotFound
	StatusRequestTimeout        = fasthttp.StatusRequestTimeout
	StatusConflict              = fasthttp.StatusConflict
	StatusRequestEntityTooLarge = fasthttp.StatusRequestEntityTooLarge
	StatusInternalServerError   = fasthttp.StatusInternalServerError
	StatusServiceUnavailable    = fasthttp.StatusServiceUnavailable
)

func StatusText(code int) string {
	return fasthttp.StatusMessage(code)
}
