package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	xlogger "OrgTrader/pkg/logger"
)

type stubStore struct {
	r   *models.EnsembleReport
	err error
}

func (s stubStore) Latest(context.Context) (*models.EnsembleReport, error) { return s.r, s.err }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, store domrepo.ReportStore, target string) envelope {
	t.Helper()
	e := echo.New()
	NewEnsembleHandler(xlogger.Nop(), store).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func sampleReport() *models.EnsembleReport {
	return &models.EnsembleReport{
		Name:    "org",
		Epoch:   4,
		Blended: map[models.Instrument]float64{"AAA": 0.2, "BBB": 0.5, "CCC": 0.1},
		Analysts: []models.AnalystReport{
			{Name: "alice", Confidence: 0.7},
			{Name: "bob", Confidence: 0.3},
		},
	}
}

func TestEnsembleEndpoint(t *testing.T) {
	env := serve(t, stubStore{r: sampleReport()}, "/api/ensemble")
	assert.Equal(t, http.StatusOK, env.Status)

	var r models.EnsembleReport
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.Equal(t, "org", r.Name)
	assert.Len(t, r.Analysts, 2)
}

func TestEnsembleEndpointNoReport(t *testing.T) {
	env := serve(t, stubStore{err: domrepo.ErrNotFound}, "/api/ensemble")
	assert.Equal(t, http.StatusNotFound, env.Status)

	env = serve(t, stubStore{err: errors.New("redis down")}, "/api/ensemble")
	assert.Equal(t, http.StatusInternalServerError, env.Status)
}

func TestWeightsEndpointSortsAndTruncates(t *testing.T) {
	env := serve(t, stubStore{r: sampleReport()}, "/api/ensemble/weights?top=2")
	require.Equal(t, http.StatusOK, env.Status)

	var res models.WeightsResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Weights, 2)
	assert.Equal(t, models.Instrument("BBB"), res.Weights[0].Instrument)
	assert.Equal(t, models.Instrument("AAA"), res.Weights[1].Instrument)
	assert.InDelta(t, 0.2, res.Unassigned, 1e-9)
	assert.Equal(t, int64(4), res.Epoch)
}

func TestWeightsEndpointRejectsBadTop(t *testing.T) {
	env := serve(t, stubStore{r: sampleReport()}, "/api/ensemble/weights?top=-1")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestAnalystEndpoint(t *testing.T) {
	env := serve(t, stubStore{r: sampleReport()}, "/api/analysts/alice")
	require.Equal(t, http.StatusOK, env.Status)
	var a models.AnalystReport
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, 0.7, a.Confidence)

	env = serve(t, stubStore{r: sampleReport()}, "/api/analysts/carol")
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestAnalystEndpointIgnoresCase(t *testing.T) {
	env := serve(t, stubStore{r: sampleReport()}, "/api/analysts/Alice")
	require.Equal(t, http.StatusOK, env.Status)
	var a models.AnalystReport
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, "alice", a.Name)
}

func TestHealthz(t *testing.T) {
	e := echo.New()
	NewEnsembleHandler(nil, stubStore{}).RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHealthzReportsFailingDependency(t *testing.T) {
	e := echo.New()
	h := NewEnsembleHandler(xlogger.Nop(), stubStore{})
	h.AddHealthCheck("cache", func(context.Context) error { return nil })
	h.AddHealthCheck("clickhouse", func(context.Context) error { return errors.New("connection refused") })
	h.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Dependencies["cache"])
	assert.Equal(t, "connection refused", body.Dependencies["clickhouse"])
}
