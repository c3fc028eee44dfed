package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izzacatering/backend/internal/models"
)

func TestInstrumentHandlerLabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /test/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := InstrumentHandler(mux)

	counter := httpRequests.WithLabelValues("GET", "GET /test/events/{id}", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test/events/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}
	assert.Equal(t, before+3, testutil.ToFloat64(counter))

	unmatched := httpRequests.WithLabelValues("GET", "unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(unmatched))
}

type stubPublisher struct{ err error }

func (s stubPublisher) Publish(context.Context, models.Notification) error { return s.err }

func TestCountPublishes(t *testing.T) {
	ok := notificationsPublished.WithLabelValues(string(models.NotifyBroadcast), "ok")
	failed := notificationsPublished.WithLabelValues(string(models.NotifyBroadcast), "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	n := models.Notification{Type: models.NotifyBroadcast}
	require.NoError(t, CountPublishes(stubPublisher{}).Publish(context.Background(), n))
	boom := errors.New("down")
	assert.ErrorIs(t, CountPublishes(stubPublisher{err: boom}).Publish(context.Background(), n), boom)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
}

func TestRegisterGaugeAndExpose(t *testing.T) {
	require.NoError(t, RegisterGauge("test", "answer", "A test gauge.", func() float64 { return 42 }))
	require.NoError(t, RegisterGauge("test", "answer", "A test gauge.", func() float64 { return 0 }))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "izza_test_answer 42"))
}
