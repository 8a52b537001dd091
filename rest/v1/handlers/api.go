package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/nspcc-dev/hsm-http-gw/admin"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/objects"
	"github.com/nspcc-dev/hsm-http-gw/response"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Metrics accounts for object and administration commands.
type Metrics interface {
	ObserveCommand(command string, err error)
}

// API is a REST v1 request handler.
type API struct {
	log      *zap.Logger
	objects  *objects.Client
	admin    *admin.Client
	metrics  Metrics
	validate *validator.Validate
}

// PrmAPI groups parameters to init rest API.
type PrmAPI struct {
	Logger  *zap.Logger
	Objects *objects.Client
	Admin   *admin.Client
	// Metrics may be nil.
	Metrics Metrics
}

// New creates a new API serving object and administration commands.
func New(prm *PrmAPI) *API {
	return &API{
		log:      prm.Logger,
		objects:  prm.Objects,
		admin:    prm.Admin,
		metrics:  prm.Metrics,
		validate: validator.New(),
	}
}

func (a *API) encodeAndSend(c *fasthttp.RequestCtx, data interface{}) {
	c.Response.SetStatusCode(fasthttp.StatusOK)
	c.Response.Header.SetContentType("application/json")

	enc := json.NewEncoder(c)
	enc.SetIndent("", "\t")
	if err := enc.Encode(data); err != nil {
		a.logAndSendError(c, "could not encode response", err, fasthttp.StatusBadRequest)
	}
}

func (a *API) logAndSendError(c *fasthttp.RequestCtx, msg string, err error, status int) {
	a.log.Error(msg, zap.Error(err))
	response.Error(c, msg+": "+err.Error(), status)
}

// done accounts for a command and replies to it, with an empty body on
// success.
func (a *API) done(c *fasthttp.RequestCtx, command string, err error) bool {
	if a.metrics != nil {
		a.metrics.ObserveCommand(command, err)
	}

	if err != nil {
		a.logAndSendError(c, command+" failed", err, response.StatusFor(err))
		return false
	}

	return true
}

// decode reads and validates a JSON request body.
func (a *API) decode(c *fasthttp.RequestCtx, v any) error {
	if err := json.Unmarshal(c.PostBody(), v); err != nil {
		return fmt.Errorf("%w: couldn't decode request: %s", hsmerr.ErrInvalidArgument, err)
	}

	if err := a.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", hsmerr.ErrInvalidArgument, err)
	}

	return nil
}

func queryStrings(args *fasthttp.Args, key string) []string {
	var res []string
	for _, v := range args.PeekMulti(key) {
		res = append(res, string(v))
	}

	return res
}
