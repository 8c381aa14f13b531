package api

import (
	"net/http"
	"strconv"

	"github.com/veilvote/veilvote/audit"
)

// auditEvents returns recent audit records, newest first. Optional query
// parameters filter by category and cap the number of results.
// GET /audit?category=issuance&limit=50
func (a *API) auditEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			ErrMalformedBody.With("invalid limit parameter").Write(w)
			return
		}
		limit = n
	}
	events := a.trail.Events(audit.Category(r.URL.Query().Get("category")), limit)
	httpWriteJSON(w, events)
}
