package response

import (
	"errors"
	"syscall"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/valyala/fasthttp"
)

// Error add new line to msg and invoke r.Error.
func Error(r *fasthttp.RequestCtx, msg string, code int) {
	r.Error(msg+"\n", code)
}

// ErrorFor replies with msg followed by err and the status StatusFor picks.
func ErrorFor(r *fasthttp.RequestCtx, msg string, err error) {
	Error(r, msg+": "+err.Error(), StatusFor(err))
}

// StatusFor maps an engine or client failure to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return fasthttp.StatusOK
	case errors.Is(err, hsmerr.ErrInvalidArgument), errors.Is(err, hsmerr.ErrEncoding):
		return fasthttp.StatusBadRequest
	case errors.Is(err, hsmerr.ErrUnsupportedOperation):
		return fasthttp.StatusNotImplemented
	}

	switch hsmerr.Code(err) {
	case syscall.EINVAL:
		return fasthttp.StatusBadRequest
	case syscall.ENOENT:
		return fasthttp.StatusNotFound
	case syscall.EEXIST:
		return fasthttp.StatusConflict
	case syscall.EBUSY, syscall.EAGAIN:
		return fasthttp.StatusLocked
	case syscall.ENODEV, syscall.EOPNOTSUPP:
		return fasthttp.StatusNotImplemented
	case syscall.ENOSPC:
		return fasthttp.StatusInsufficientStorage
	case syscall.ENXIO:
		return fasthttp.StatusServiceUnavailable
	case syscall.EREMOTE:
		return fasthttp.StatusMisdirectedRequest
	}

	return fasthttp.StatusInternalServerError
}
