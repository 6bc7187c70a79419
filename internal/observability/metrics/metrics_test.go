package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Post("/recommend", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/recommend", nil))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodPost, "/recommend", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requestInFlight))
}

func TestObserveRun(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveRun(domain.RunTrace{
		Final:          domain.StateAnswered,
		FallbackUsed:   true,
		RerankDegraded: true,
		StageDurations: map[string]time.Duration{"retrieve": 20 * time.Millisecond},
	})
	m.ObserveRun(domain.RunTrace{Final: domain.StateTopicRejected})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("api", "answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("api", "topic_rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbackTotal.WithLabelValues("api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.degradedTotal.WithLabelValues("api", "reranker")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.degradedTotal.WithLabelValues("api", "self_query")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}

func TestIndexAndBreakerGauges(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordIndexSwap(120)
	m.RecordIndexSwap(130)
	m.ObserveBreakerState("qdrant.search", "open")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.indexSwapsTotal.WithLabelValues("api")))
	assert.Equal(t, 130.0, testutil.ToFloat64(m.indexDocuments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("qdrant.search")))

	m.ObserveBreakerState("qdrant.search", "half-open")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.breakerState.WithLabelValues("qdrant.search")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.EmbeddingCacheCounter().WithLabelValues("hit").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "fashionrec_embedding_cache_requests_total"))
}
