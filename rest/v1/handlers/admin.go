package handlers

import (
	"context"

	"github.com/nspcc-dev/hsm-http-gw/admin"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"github.com/nspcc-dev/hsm-http-gw/rest/v1/model"
	"github.com/valyala/fasthttp"
)

func familyParam(c *fasthttp.RequestCtx) (resource.Family, error) {
	name, _ := c.UserValue("family").(string)
	return resource.ParseFamily(name)
}

// DevicesAdd handler that registers devices of a family.
func (a *API) DevicesAdd(c *fasthttp.RequestCtx) {
	var req model.ResourcesAddRequest

	family, err := familyParam(c)
	if err == nil {
		err = a.decode(c, &req)
	}
	if err == nil {
		err = a.admin.Add(c, family, req.Names, req.KeepLocked)
	}
	if a.done(c, "device add", err) {
		c.SetStatusCode(fasthttp.StatusCreated)
	}
}

func (a *API) devicesStatus(c *fasthttp.RequestCtx, command string,
	set func(context.Context, resource.Family, []string, bool) error) {
	var req model.DevicesLockRequest

	family, err := familyParam(c)
	if err == nil {
		err = a.decode(c, &req)
	}
	if err == nil {
		err = set(c, family, req.Names, req.Forced)
	}
	if a.done(c, command, err) {
		c.SetStatusCode(fasthttp.StatusNoContent)
	}
}

// DevicesLock handler that administratively locks devices.
func (a *API) DevicesLock(c *fasthttp.RequestCtx) {
	a.devicesStatus(c, "device lock", a.admin.Lock)
}

// DevicesUnlock handler that administratively unlocks devices.
func (a *API) DevicesUnlock(c *fasthttp.RequestCtx) {
	a.devicesStatus(c, "device unlock", a.admin.Unlock)
}

// MediaAdd handler that registers blank media of a family.
func (a *API) MediaAdd(c *fasthttp.RequestCtx) {
	var req model.ResourcesAddRequest

	family, err := familyParam(c)
	if err == nil {
		err = a.decode(c, &req)
	}
	if err == nil {
		err = a.admin.MediumAdd(c, family, req.Names, req.Tags, req.KeepLocked)
	}
	if a.done(c, "medium add", err) {
		c.SetStatusCode(fasthttp.StatusCreated)
	}
}

// MediaFormat handler that formats media one after the other and stops at
// the first failure.
func (a *API) MediaFormat(c *fasthttp.RequestCtx) {
	var req model.FormatRequest

	err := a.decode(c, &req)
	for i := 0; err == nil && i < len(req.Names); i++ {
		err = a.admin.Format(c, req.Names[i], req.FSType, req.Unlock)
	}
	if a.done(c, "medium format", err) {
		c.SetStatusCode(fasthttp.StatusNoContent)
	}
}

// LayoutsList handler that lists object layouts, one record per extent with
// degroup=true.
func (a *API) LayoutsList(c *fasthttp.RequestCtx) {
	args := c.QueryArgs()

	list, err := a.admin.LayoutList(c, admin.LayoutParams{
		Resources: queryStrings(args, "resource"),
		Pattern:   args.GetBool("pattern"),
		Medium:    string(args.Peek("medium")),
		Degroup:   args.GetBool("degroup"),
	})
	if !a.done(c, "layout list", err) {
		return
	}
	defer list.Release()

	records := list.Records()
	resp := make([]model.LayoutInfo, 0, len(records))
	for i := range records {
		resp = append(resp, model.NewLayoutInfo(&records[i]))
	}

	a.encodeAndSend(c, resp)
}
