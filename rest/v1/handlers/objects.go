package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/objects"
	"github.com/nspcc-dev/hsm-http-gw/rest/v1/model"
	"github.com/valyala/fasthttp"
)

var statusNames = map[string]catalog.ObjectStatus{
	"incomplete": catalog.StatusIncomplete,
	"readable":   catalog.StatusReadable,
	"complete":   catalog.StatusComplete,
}

// parseStatusMask reads a comma separated list of object statuses.
func parseStatusMask(s string) (catalog.ObjectStatus, error) {
	var mask catalog.ObjectStatus
	if s == "" {
		return mask, nil
	}

	for _, name := range strings.Split(s, ",") {
		st, ok := statusNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("%w: unknown object status '%s'", hsmerr.ErrInvalidArgument, name)
		}
		mask |= st
	}

	return mask, nil
}

// ObjectsList handler that lists live or deprecated objects.
func (a *API) ObjectsList(c *fasthttp.RequestCtx) {
	args := c.QueryArgs()

	var list *objects.ObjectList

	mask, err := parseStatusMask(string(args.Peek("status")))
	if err == nil {
		list, err = a.objects.List(c, objects.ListParams{
			Resources:  queryStrings(args, "resource"),
			Pattern:    args.GetBool("pattern"),
			Metadata:   queryStrings(args, "metadata"),
			Deprecated: args.GetBool("deprecated"),
			StatusMask: mask,
			SortField:  string(args.Peek("sort")),
			Reverse:    args.GetBool("reverse"),
		})
	}
	if !a.done(c, "object list", err) {
		return
	}
	defer list.Release()

	records := list.Records()
	resp := make([]model.ObjectInfo, 0, len(records))
	for i := range records {
		resp = append(resp, model.NewObjectInfo(&records[i]))
	}

	a.encodeAndSend(c, resp)
}

// ObjectsDelete handler that deprecates an object, or removes it for good
// with hard=true.
func (a *API) ObjectsDelete(c *fasthttp.RequestCtx) {
	oid, _ := c.UserValue("oid").(string)

	err := a.objects.Delete(c, []string{oid}, c.QueryArgs().GetBool("hard"))
	if a.done(c, "object delete", err) {
		c.SetStatusCode(fasthttp.StatusNoContent)
	}
}

// ObjectsUndelete handler that restores deprecated objects.
func (a *API) ObjectsUndelete(c *fasthttp.RequestCtx) {
	var req model.UndeleteRequest

	err := a.decode(c, &req)
	if err == nil {
		err = a.objects.Undelete(c, req.OIDs, req.UUIDs)
	}
	if a.done(c, "object undelete", err) {
		c.SetStatusCode(fasthttp.StatusNoContent)
	}
}

// ObjectsRename handler that changes the oid of an object.
func (a *API) ObjectsRename(c *fasthttp.RequestCtx) {
	var req model.RenameRequest

	err := a.decode(c, &req)
	if err == nil {
		err = a.objects.Rename(c, req.OldOID, req.UUID, req.NewOID)
	}
	if a.done(c, "object rename", err) {
		c.SetStatusCode(fasthttp.StatusNoContent)
	}
}

// ObjectsLocate handler that names the host to read an object from.
func (a *API) ObjectsLocate(c *fasthttp.RequestCtx) {
	var (
		oid, _  = c.UserValue("oid").(string)
		args    = c.QueryArgs()
		version int
		err     error
	)

	if v := string(args.Peek("version")); v != "" {
		if version, err = strconv.Atoi(v); err != nil {
			err = fmt.Errorf("%w: version '%s'", hsmerr.ErrInvalidArgument, v)
		}
	}

	var loc objects.Location
	if err == nil {
		loc, err = a.objects.Locate(c, oid, string(args.Peek("uuid")), version, string(args.Peek("focus_host")))
	}
	if !a.done(c, "object locate", err) {
		return
	}

	a.encodeAndSend(c, model.LocateResponse{Hostname: loc.Hostname, NewLocks: loc.NewLocks})
}
