package httpapi

import (
	"database/sql"
	"net/http"
	"strconv"

	"leadscout-engine/internal/store"
)

type LeadsHandler struct {
	DB *sql.DB
}

func (h LeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	leads, err := store.ListLeads(r.Context(), h.DB, store.ListLeadsOpts{
		SourceFile: q.Get("file"),
		Limit:      limit,
	})
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, leads)
}
