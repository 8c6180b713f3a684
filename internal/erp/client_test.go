package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"zerosync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

// erpStub is a minimal in-process ERP. Behavior is tweaked per test through
// the function fields.
type erpStub struct {
	mux        *http.ServeMux
	logins     atomic.Int32
	inventory  func(w http.ResponseWriter, r *http.Request)
	lastBatch  *Batch
	validToken string
}

func newERPStub() *erpStub {
	s := &erpStub{mux: http.NewServeMux(), validToken: "tok-1"}
	s.mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		s.logins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": s.validToken})
	})
	s.mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
	s.mux.HandleFunc("/api/data-process/inventory", func(w http.ResponseWriter, r *http.Request) {
		var batch Batch
		json.NewDecoder(r.Body).Decode(&batch)
		s.lastBatch = &batch
		if r.Header.Get("Authorization") != "Bearer "+s.validToken {
			w.WriteHeader(401)
			return
		}
		s.inventory(w, r)
	})
	return s
}

func newTestClient(t *testing.T, stub *erpStub) *Client {
	t.Helper()
	server := httptest.NewServer(stub.mux)
	t.Cleanup(server.Close)

	c := NewClient(server.URL, "op", "secret", "zerosync", zap.NewNop())
	c.initialDelay = time.Millisecond
	c.abortCooldown = time.Millisecond
	return c
}

func streamProgress(w http.ResponseWriter, lines ...string) {
	flusher := w.(http.Flusher)
	for _, line := range lines {
		fmt.Fprintln(w, line)
		flusher.Flush()
	}
}

func TestSubmit_ConsumesProgressStreamToCompletion(t *testing.T) {
	stub := newERPStub()
	stub.inventory = func(w http.ResponseWriter, r *http.Request) {
		streamProgress(w,
			`{"status":"processing","processed_count":1}`,
			`{"status":"processing","processed_count":2}`,
			`{"status":"completed","version":"2.0","current_version":"2.0","processed_count":2}`,
		)
	}
	c := newTestClient(t, stub)

	records := []*domain.SystemRecord{{SerialNumber: "A1"}, {SerialNumber: "B2"}}
	result := c.SubmitRecords(context.Background(), records)

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "2.0", result.SyncVersion)
	assert.Equal(t, 2, result.ItemsProcessed)

	// The wire envelope carries the checksum the server verifies.
	require.NotNil(t, stub.lastBatch)
	assert.Equal(t, Checksum(stub.lastBatch.Items), stub.lastBatch.Metadata.Checksum)
	assert.Equal(t, "zerosync", stub.lastBatch.Source)
}

func TestSubmit_CompletedWithoutVersionFallsBackToSchema(t *testing.T) {
	stub := newERPStub()
	stub.inventory = func(w http.ResponseWriter, r *http.Request) {
		streamProgress(w, `{"status":"completed"}`)
	}
	c := newTestClient(t, stub)

	result := c.Submit(context.Background(), NewBatch("zerosync", nil, time.Now()))
	require.True(t, result.Success)
	assert.Equal(t, SchemaVersion, result.SyncVersion)
}

func TestSubmit_StreamEndingWithoutCompletionFails(t *testing.T) {
	stub := newERPStub()
	stub.inventory = func(w http.ResponseWriter, r *http.Request) {
		streamProgress(w, `{"status":"processing","processed_count":1}`)
	}
	c := newTestClient(t, stub)

	result := c.Submit(context.Background(), NewBatch("zerosync", nil, time.Now()))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "processing incomplete")
}

func TestSubmit_ServerErrorInStream(t *testing.T) {
	stub := newERPStub()
	stub.inventory = func(w http.ResponseWriter, r *http.Request) {
		streamProgress(w, `{"status":"failed","error":"duplicate batch"}`)
	}
	c := newTestClient(t, stub)

	result := c.Submit(context.Background(), NewBatch("zerosync", nil, time.Now()))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "duplicate batch")
}

func TestSubmit_RetriesThenSucceeds(t *testing.T) {
	stub := newERPStub()
	var calls atomic.Int32
	stub.inventory = func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(503)
			return
		}
		streamProgress(w, `{"status":"completed","version":"2.0"}`)
	}
	c := newTestClient(t, stub)

	result := c.Submit(context.Background(), NewBatch("zerosync", nil, time.Now()))
	require.True(t, result.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmit_ExhaustedRetriesReportFailure(t *testing.T) {
	stub := newERPStub()
	stub.inventory = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}
	c := newTestClient(t, stub)

	result := c.Submit(context.Background(), NewBatch("zerosync", nil, time.Now()))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "503")
}

func TestSubmit_BackoffDoublesFromInitialDelay(t *testing.T) {
	stub := newERPStub()
	stub.inventory = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}
	c := newTestClient(t, stub)
	c.initialDelay = 30 * time.Millisecond

	// Three attempts wait initialDelay before the first retry and double
	// before the second: 30ms + 60ms. An off-by-one in the exponent would
	// double that.
	start := time.Now()
	result := c.Submit(context.Background(), NewBatch("zerosync", nil, time.Now()))
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, 170*time.Millisecond)
}

func TestSubmit_ExpiredTokenRefreshedOnce(t *testing.T) {
	stub := newERPStub()
	stub.inventory = func(w http.ResponseWriter, r *http.Request) {
		streamProgress(w, `{"status":"completed","version":"2.0"}`)
	}
	c := newTestClient(t, stub)

	// A stale token forces a 401 on the first inventory call; the client must
	// re-login and replay transparently.
	c.setToken("stale")
	result := c.Submit(context.Background(), NewBatch("zerosync", nil, time.Now()))
	require.True(t, result.Success)
	assert.Equal(t, int32(1), stub.logins.Load())
}

func TestLogin_MissingTokenRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(server.URL, "op", "secret", "zerosync", zap.NewNop())
	assert.Error(t, c.Login(context.Background()))
}

func TestCleanLogs_RetriesAfterBusy(t *testing.T) {
	stub := newERPStub()
	var deletes atomic.Int32
	stub.mux.HandleFunc("/api/data-process/logs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && deletes.Add(1) == 1 {
			w.WriteHeader(500)
			return
		}
		w.Write([]byte(`{"logs":[]}`))
	})
	c := newTestClient(t, stub)

	require.NoError(t, c.CleanLogs(context.Background()))
	assert.Equal(t, int32(2), deletes.Load())
}

func TestGetLogs(t *testing.T) {
	stub := newERPStub()
	stub.mux.HandleFunc("/api/data-process/logs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"logs":[{"batch_id":"SYNC_1"}]}`))
	})
	c := newTestClient(t, stub)

	logs, err := c.GetLogs(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"logs":[{"batch_id":"SYNC_1"}]}`, string(logs))
}
