package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.PostSaved("published")
	m.PostSaved("published")
	m.Notification("blog_notification", "failed")
	m.StoreFallback("create")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.postsSaved.WithLabelValues("published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("blog_notification", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("create")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PostSaved("draft")
	m.Notification("contact", "sent")
	m.StoreFallback("get")
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.StoreFallback("list")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `folio_store_fallbacks_total{op="list"} 1`)
}
