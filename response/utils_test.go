package response

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, fasthttp.StatusOK},
		{"invalid argument", fmt.Errorf("%w: bad filter", hsmerr.ErrInvalidArgument), fasthttp.StatusBadRequest},
		{"encoding", hsmerr.ErrEncoding, fasthttp.StatusBadRequest},
		{"unsupported", hsmerr.ErrUnsupportedOperation, fasthttp.StatusNotImplemented},
		{"missing object", hsmerr.NewEngineError("object delete", "'a'", syscall.ENOENT), fasthttp.StatusNotFound},
		{"catalog not found", hsmerr.ErrNotFound, fasthttp.StatusNotFound},
		{"duplicate", hsmerr.NewEngineError("device add", "", syscall.EEXIST), fasthttp.StatusConflict},
		{"busy", hsmerr.NewEngineError("device lock", "'d'", syscall.EBUSY), fasthttp.StatusLocked},
		{"no space", &hsmerr.IOError{Op: "PUT", Code: syscall.ENOSPC}, fasthttp.StatusInsufficientStorage},
		{"offline", hsmerr.NewEngineError("admin init", "", syscall.ENXIO), fasthttp.StatusServiceUnavailable},
		{"remote", &hsmerr.IOError{Op: "GET", Code: syscall.EREMOTE, NodeName: "node-2"}, fasthttp.StatusMisdirectedRequest},
		{"other", errors.New("boom"), fasthttp.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.code, StatusFor(tc.err))
		})
	}
}

func TestErrorFor(t *testing.T) {
	var c fasthttp.RequestCtx

	ErrorFor(&c, "could not lock", hsmerr.NewEngineError("device lock", "'d'", syscall.EBUSY))
	require.Equal(t, fasthttp.StatusLocked, c.Response.StatusCode())
	require.Contains(t, string(c.Response.Body()), "could not lock: device lock error on 'd'")
}
