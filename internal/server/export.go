package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/claims-processor/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportClaims handles GET /claims/export?from=YYYY-MM-DD&to=YYYY-MM-DD.
// - only from -> from..today (inclusive)
// - only to   -> beginning..to (inclusive)
// - none      -> all.
func (h *Handler) ExportClaims(w http.ResponseWriter, r *http.Request) {
	log := common.LoggerFromContext(r.Context(), h.Logger)

	from, err := parseDateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	xlsx, err := h.Exporter.ExportClaimsXLSX(r.Context(), from, to)
	if err != nil {
		log.Error("export.xlsx.failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="claims.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	t, err := common.ParseYMD(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return &t, nil
}
