package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFrame(5*time.Millisecond, 3)
	m.ObserveFrame(6*time.Millisecond, 4)
	m.Rejected(2)
	m.Rejected(0)
	m.Resized()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ActiveDeposits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resizes))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFrame(time.Millisecond, 1)
		m.Rejected(1)
		m.Resized()
	})
}
