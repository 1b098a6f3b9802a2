package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/tryout-admin/backend/internal/activation"
	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

func TestObserveActivation(t *testing.T) {
	m := New()

	m.ObserveActivation(activation.OutcomeCreated, nil)
	m.ObserveActivation(activation.OutcomeExtended, nil)
	m.ObserveActivation(activation.OutcomeExtended, nil)
	m.ObserveActivation("", fmt.Errorf("%w: create subscription", activation.ErrConflict))
	m.ObserveActivation("", errors.New("connection reset"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activations.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activations.WithLabelValues("extended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activationErrors.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activationErrors.WithLabelValues("persistence")))
}

func TestJobHooks(t *testing.T) {
	m := New()
	hooks := m.JobHooks()
	job := models.NewTransactionStatusJob("tx-1", models.PaymentStatusPaid)

	hooks.OnEnqueue(job)
	hooks.OnFail(job, errors.New("boom"), 10*time.Millisecond)
	hooks.OnRetry(job, time.Second)
	hooks.OnComplete(job, 20*time.Millisecond)

	for _, result := range []string{"enqueued", "failed", "retried", "completed"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues(models.JobTypeTransactionStatus, result)), result)
	}

	m.ObserveExpirySweep(5)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.expiredSwept))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveActivation(activation.OutcomeNoOp, nil)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `tryout_admin_activations_total{outcome="noop"} 1`)
}
