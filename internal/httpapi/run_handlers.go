package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"leadscout-engine/internal/config"
	"leadscout-engine/internal/events"
	"leadscout-engine/internal/pipeline"
)

type RunHandler struct {
	CfgVal      *atomic.Value // config.Config
	RunStatus   *atomic.Value // httpapi.RunStatus
	Hub         *events.Hub
	RunPipeline func(ctx context.Context, cfg config.Config) (pipeline.Summary, error)
}

func (h RunHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.RunStatus.Load().(RunStatus)
	writeJSON(w, st)
}

// Run starts a pipeline invocation asynchronously and acknowledges
// immediately. The processed-files guard keeps an overlapping run from
// double-storing, but does not lock; see /run/status for progress.
func (h RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	st := h.RunStatus.Load().(RunStatus)
	if st.Running {
		writeJSON(w, map[string]any{"ok": false, "msg": "already running"})
		return
	}

	h.RunStatus.Store(RunStatus{
		LastRunAt: time.Now().Format(time.RFC3339),
		Running:   true,
		LastOkAt:  st.LastOkAt,
	})

	go func() {
		cfg := h.CfgVal.Load().(config.Config)
		sum, err := h.RunPipeline(context.Background(), cfg)

		now := time.Now().Format(time.RFC3339)
		next := h.RunStatus.Load().(RunStatus)
		next.Running = false
		next.LastRunAt = now
		next.FilesDone = sum.FilesProcessed
		next.LeadsStored = sum.LeadsStored
		if err != nil {
			next.LastError = err.Error()
		} else {
			next.LastError = ""
			next.LastOkAt = now
		}
		h.RunStatus.Store(next)
	}()

	writeJSON(w, map[string]any{"ok": true, "status": "accepted"})
}
