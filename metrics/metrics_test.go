package metrics

import (
	"syscall"
	"testing"
	"time"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestGateMetrics(t *testing.T) {
	m := NewGateMetrics(prometheus.NewRegistry())

	m.SetHealth(1)
	require.Equal(t, 1.0, testutil.ToFloat64(m.healthCheck))

	m.ObserveTransfer("PUT", nil, time.Millisecond, 1024)
	m.ObserveTransfer("PUT", &hsmerr.IOError{Op: "PUT", Code: syscall.ENOSPC}, time.Millisecond, 1024)
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("PUT", "0")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("PUT", "28")))
	require.Equal(t, 1024.0, testutil.ToFloat64(m.bytes.WithLabelValues("PUT")))

	m.ObserveCommand("device lock", hsmerr.NewEngineError("device lock", "", syscall.EBUSY))
	require.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("device lock", "16")))
}
