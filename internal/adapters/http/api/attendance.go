package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/facegate/internal/domain/ledger"
	"github.com/okian/facegate/internal/domain/model"
)

// AttendanceDependencies defines the ledger query the handler needs.
type AttendanceDependencies interface {
	Attendance(ctx context.Context, f ledger.Filter) ([]model.DayRecord, error)
}

// AttendanceHandler handles attendance queries.
type AttendanceHandler struct {
	deps AttendanceDependencies
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(deps AttendanceDependencies) *AttendanceHandler {
	return &AttendanceHandler{deps: deps}
}

type attendanceResponse struct {
	Count   int               `json:"count"`
	Records []model.DayRecord `json:"records"`
}

// HandleGetAttendance handles GET /api/attendance?date=YYYY-MM-DD&identity=name.
func (h *AttendanceHandler) HandleGetAttendance(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_attendance"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	f := ledger.Filter{
		Date:     strings.TrimSpace(q.Get("date")),
		Identity: strings.TrimSpace(q.Get("identity")),
	}
	if f.Date != "" {
		if _, err := time.Parse(model.DateLayout, f.Date); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: date must be YYYY-MM-DD", ErrBadRequest))
			return
		}
	}

	records, err := h.deps.Attendance(r.Context(), f)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	if records == nil {
		records = []model.DayRecord{}
	}
	writeJSON(w, http.StatusOK, attendanceResponse{Count: len(records), Records: records})
}
