package uploader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/nspcc-dev/hsm-http-gw/resource"
	"github.com/nspcc-dev/hsm-http-gw/xfer"
	"github.com/valyala/fasthttp"
)

const layoutReplCount = "repl_count"

// putParams reads PUT placement from the query string.
func putParams(args *fasthttp.Args) (xfer.PutParams, xfer.Flags, error) {
	var (
		p     xfer.PutParams
		flags xfer.Flags
		err   error
	)

	if name := string(args.Peek("family")); name != "" {
		if p.Family, err = resource.ParseFamily(name); err != nil {
			return p, 0, err
		}
	}

	p.Layout = string(args.Peek("layout"))
	p.Alias = string(args.Peek("alias"))
	p.Grouping = string(args.Peek("grouping"))
	p.Library = string(args.Peek("library"))
	p.Overwrite = args.GetBool("overwrite")

	if tags := string(args.Peek("tags")); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				p.Tags = append(p.Tags, tag)
			}
		}
	}

	if v := string(args.Peek(layoutReplCount)); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 1 {
			return p, 0, fmt.Errorf("%w: %s must be a positive integer, got '%s'",
				hsmerr.ErrInvalidArgument, layoutReplCount, v)
		}
		if err = p.LayoutParams.Set(layoutReplCount, v); err != nil {
			return p, 0, err
		}
	}

	if p.Overwrite {
		flags |= xfer.FlagReplace
	}

	return p, flags, nil
}
