package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"zerosync/internal/domain"
	"zerosync/internal/repository"

	"go.uber.org/zap"
)

// StatusHandler serves sync health and the two result sets the external
// dashboard renders (recent snapshots and product keys).
type StatusHandler struct {
	records repository.SystemRecordsRepository
	keys    repository.ProductKeysRepository
	logger  *zap.Logger
}

func NewStatusHandler(records repository.SystemRecordsRepository, keys repository.ProductKeysRepository, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{records: records, keys: keys, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *StatusHandler) Health(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatusHandler) SyncStats(w http.ResponseWriter, req *http.Request) {
	stats, err := h.records.GetSyncStats(req.Context())
	if err != nil {
		h.logger.Error("Failed to load sync stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load sync stats"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(stats))
}

func limitParam(req *http.Request, def, max int) int {
	limit := def
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

func (h *StatusHandler) Records(w http.ResponseWriter, req *http.Request) {
	records, err := h.records.ListRecent(req.Context(), limitParam(req, 100, 1000))
	if err != nil {
		h.logger.Error("Failed to list records", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list records"))
		return
	}
	if records == nil {
		records = []*domain.SystemRecord{}
	}
	writeJSON(w, http.StatusOK, Ok(records))
}

func (h *StatusHandler) ProductKeys(w http.ResponseWriter, req *http.Request) {
	keys, err := h.keys.ListRecent(req.Context(), limitParam(req, 100, 1000))
	if err != nil {
		h.logger.Error("Failed to list product keys", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list product keys"))
		return
	}
	if keys == nil {
		keys = []*domain.ProductKey{}
	}
	writeJSON(w, http.StatusOK, Ok(keys))
}
