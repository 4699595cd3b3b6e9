package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { Register(reg) })

	before := testutil.ToFloat64(rateLimitBlocks.WithLabelValues("metrics-test"))
	ObserveRateLimitAttempt("metrics-test", "allowed")
	ObserveRateLimitAttempt("metrics-test", "triggered")
	assert.Equal(t, before+1, testutil.ToFloat64(rateLimitBlocks.WithLabelValues("metrics-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rateLimitAttempts.WithLabelValues("metrics-test", "allowed")))

	SetRateLimitEntries("metrics-test", 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(rateLimitEntries.WithLabelValues("metrics-test")))

	IncSecurityEvent("LOGIN_FAILED", "medium")
	assert.Equal(t, 1.0, testutil.ToFloat64(securityEvents.WithLabelValues("LOGIN_FAILED", "medium")))
}
