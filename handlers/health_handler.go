package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			_ = writeJSON(w, http.StatusServiceUnavailable, jsonResponse{"status": "degraded: database unreachable"}, nil)
			return
		}
	}
	_ = writeJSON(w, http.StatusOK, jsonResponse{"status": "ok"}, nil)
}
