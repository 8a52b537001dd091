package uploader

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap/zaptest"
)

func TestFilter(t *testing.T) {
	req := &fasthttp.RequestHeader{}
	req.DisableNormalizing()
	req.Set("X-Attribute-project", "x")
	req.Set("X-Attribute-MyAttribute", "value")
	req.Set("X-Attribute-", "no key")
	req.Set("X-Attribute-empty", "")
	req.Set("Content-Type", "text/plain")

	result, err := filterHeaders(zaptest.NewLogger(t), req)
	require.NoError(t, err)

	m, err := result.Mapping()
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"project":     "x",
		"MyAttribute": "value",
	}, m)
}
