package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"zerosync/internal/domain"
	"zerosync/internal/httpapi"
	"zerosync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

// stubRecords satisfies SystemRecordsRepository for the read paths the status
// surface touches.
type stubRecords struct {
	repository.SystemRecordsRepository
	stats    *domain.SyncStats
	statsErr error
	recent   []*domain.SystemRecord
	gotLimit int
}

func (s *stubRecords) GetSyncStats(context.Context) (*domain.SyncStats, error) {
	return s.stats, s.statsErr
}

func (s *stubRecords) ListRecent(_ context.Context, limit int) ([]*domain.SystemRecord, error) {
	s.gotLimit = limit
	return s.recent, nil
}

type stubKeys struct {
	repository.ProductKeysRepository
	recent []*domain.ProductKey
}

func (s *stubKeys) ListRecent(_ context.Context, limit int) ([]*domain.ProductKey, error) {
	return s.recent, nil
}

func newStatusServer(t *testing.T, records *stubRecords, keys *stubKeys) *httptest.Server {
	t.Helper()
	router := httpapi.NewRouter(zap.NewNop())
	router.RegisterStatusRoutes(httpapi.NewStatusHandler(records, keys, zap.NewNop()))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	server := newStatusServer(t, &stubRecords{}, &stubKeys{})

	var body map[string]string
	resp := getJSON(t, server.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestSyncStatsEndpoint(t *testing.T) {
	records := &stubRecords{stats: &domain.SyncStats{TotalRecords: 10, SyncedRecords: 7, PendingRecords: 3, LatestVersion: "2.0"}}
	server := newStatusServer(t, records, &stubKeys{})

	var body httpapi.Result[domain.SyncStats]
	resp := getJSON(t, server.URL+"/api/v1/sync/stats", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, httpapi.ResultSuccess, body.Code)
	assert.Equal(t, 3, body.Result.PendingRecords)
}

func TestSyncStatsEndpoint_RepositoryError(t *testing.T) {
	records := &stubRecords{statsErr: assert.AnError}
	server := newStatusServer(t, records, &stubKeys{})

	var body httpapi.Result[any]
	resp := getJSON(t, server.URL+"/api/v1/sync/stats", &body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, httpapi.ResultError, body.Code)
}

func TestRecordsEndpoint_LimitClamping(t *testing.T) {
	records := &stubRecords{}
	server := newStatusServer(t, records, &stubKeys{})

	var body httpapi.Result[[]*domain.SystemRecord]
	getJSON(t, server.URL+"/api/v1/records", &body)
	assert.Equal(t, 100, records.gotLimit)
	// An empty table serializes as [], not null.
	assert.NotNil(t, body.Result)

	getJSON(t, server.URL+"/api/v1/records?limit=5", nil)
	assert.Equal(t, 5, records.gotLimit)

	getJSON(t, server.URL+"/api/v1/records?limit=99999", nil)
	assert.Equal(t, 1000, records.gotLimit)
}

func TestStatusRoutes_MethodNotAllowed(t *testing.T) {
	server := newStatusServer(t, &stubRecords{}, &stubKeys{})

	resp, err := http.Post(server.URL+"/api/v1/records", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
