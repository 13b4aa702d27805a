package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TSNSpectra/internal/engine/tas"
	"TSNSpectra/internal/logging"
	"TSNSpectra/internal/model"
	"TSNSpectra/internal/query"
	"TSNSpectra/internal/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	filter query.Filter
	class  uint8
	err    error
}

func (f *fakeQuerier) Sessions(_ context.Context, flt query.Filter) ([]query.SessionSummary, error) {
	f.filter = flt
	if f.err != nil {
		return nil, f.err
	}
	return []query.SessionSummary{{SessionID: "a", Classes: 2, ShapedClasses: 1}}, nil
}

func (f *fakeQuerier) ClassHistory(_ context.Context, class uint8, flt query.Filter) ([]query.EstimatePoint, error) {
	f.class = class
	f.filter = flt
	if f.err != nil {
		return nil, f.err
	}
	return []query.EstimatePoint{{SessionID: "a", MeasuredBps: 1e6, IsShaped: true}}, nil
}

func testReport(id string) *model.Report {
	return &model.Report{
		SessionID:    id,
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		LinkSpeedBps: 1e9,
		Classes: []model.ClassReport{
			{Class: 2, Observations: 40, Status: "ok", Estimate: &model.CBSEstimate{MeasuredBps: 5e6, Confidence: model.ConfidenceLow}},
		},
		TAS: &model.TASReport{
			CycleNs: 1_000_000,
			GCL: []model.GCLEntry{
				{GateStates: 0b100, DurationNs: 400_000},
				{GateStates: 0, DurationNs: 600_000},
			},
		},
	}
}

func newTestRouter(q query.Querier) (*report.Store, http.Handler) {
	store := report.NewStore(2)
	return store, NewRouter(store, q, prometheus.NewRegistry(), logging.Discard().WithField("component", "api"))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	_, h := newTestRouter(nil)
	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReportEndpoints(t *testing.T) {
	store, h := newTestRouter(nil)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/report").Code)

	store.Put(testReport("s1"))
	rec := get(t, h, "/api/v1/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var back model.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &back))
	assert.Equal(t, "s1", back.SessionID)

	rec = get(t, h, "/api/v1/reports/s1?format=yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_id: s1")

	rec = get(t, h, "/api/v1/report?format=table")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/report?format=xml").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/reports/nope").Code)

	rec = get(t, h, "/api/v1/reports")
	assert.JSONEq(t, `{"sessions":["s1"]}`, rec.Body.String())
}

func TestGCLEndpoint(t *testing.T) {
	store, h := newTestRouter(nil)
	store.Put(testReport("s1"))

	rec := get(t, h, "/api/v1/gcl")
	require.Equal(t, http.StatusOK, rec.Code)
	doc, err := tas.Decode(rec.Body)
	require.NoError(t, err)
	entries, cycle, err := doc.Entries()
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), cycle)
	assert.Equal(t, testReport("s1").TAS.GCL, entries)

	noSchedule := testReport("s2")
	noSchedule.TAS = nil
	noSchedule.TASError = "no periodicity found"
	store.Put(noSchedule)
	rec = get(t, h, "/api/v1/gcl")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no periodicity found")

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/gcl?session=s1").Code)
}

func TestClassEndpoint(t *testing.T) {
	store, h := newTestRouter(nil)
	store.Put(testReport("s1"))

	rec := get(t, h, "/api/v1/classes/2")
	require.Equal(t, http.StatusOK, rec.Code)
	var cr model.ClassReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	assert.Equal(t, uint8(2), cr.Class)
	assert.Equal(t, 5e6, cr.Estimate.MeasuredBps)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/classes/3").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/classes/9").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/classes/x").Code)
}

func TestHistoryEndpoints(t *testing.T) {
	_, h := newTestRouter(nil)
	assert.Equal(t, http.StatusNotImplemented, get(t, h, "/api/v1/history/sessions").Code)

	q := &fakeQuerier{}
	_, h = newTestRouter(q)

	rec := get(t, h, "/api/v1/history/sessions?since=2024-05-01T00:00:00Z&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, q.filter.Limit)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), q.filter.Since.UTC())
	assert.Contains(t, rec.Body.String(), `"shaped_classes":1`)

	rec = get(t, h, "/api/v1/history/classes/6")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint8(6), q.class)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/history/sessions?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/history/sessions?since=yesterday").Code)

	q.err = errors.New("connection refused")
	rec = get(t, h, "/api/v1/history/classes/6")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "tsn_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := NewRouter(report.NewStore(1), nil, reg, logging.Discard().WithField("component", "api"))
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("tsn_test_total %d", 1))
}
