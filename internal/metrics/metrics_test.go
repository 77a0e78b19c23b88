package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsOptimizations(t *testing.T) {
	rec := NewRecorder()
	rec.RecordOptimization("branch_and_bound", OutcomeSuccess, 20*time.Millisecond, 0.61)
	rec.RecordOptimization("branch_and_bound", OutcomeInfeasible, 5*time.Millisecond, 0)
	rec.RecordOptimization("branch_and_bound", OutcomeSuccess, 30*time.Millisecond, 0.58)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.optimizations.WithLabelValues("branch_and_bound", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.optimizations.WithLabelValues("branch_and_bound", OutcomeInfeasible)))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.solveSeconds))
}

func TestRecorderCacheAndProgress(t *testing.T) {
	rec := NewRecorder()
	rec.RecordCacheLookup(true)
	rec.RecordCacheLookup(true)
	rec.RecordCacheLookup(false)
	rec.RecordProgress()

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.progressUpdates))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.RecordOptimization("annealing", OutcomeTimeout, time.Second, 0)
		rec.RecordCacheLookup(false)
		rec.RecordProgress()
		rec.RecordHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
	})
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := NewRecorder()

	router := gin.New()
	router.Use(rec.Middleware())
	router.GET("/seasons/:season/baseline", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(rec.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/seasons/2023-24/baseline", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.requests.WithLabelValues(http.MethodGet, "/seasons/:season/baseline", "200")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}
